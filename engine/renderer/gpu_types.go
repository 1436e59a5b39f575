package renderer

import (
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
)

// GPULaunchParamsSource is the canonical WGSL definition of the LaunchParams struct.
// Matches GPULaunchParams layout exactly (208 bytes, std430 aligned).
//
//go:embed assets/launch_params.wgsl
var GPULaunchParamsSource string

// GPULaunchParamsSize is the byte size of an encoded GPULaunchParams.
const GPULaunchParamsSize = 208

// GPULaunchParams is the per-frame parameter block uploaded before every kernel launch.
// Size: 208 bytes (std430 / WGSL aligned).
type GPULaunchParams struct {
	Traversable           backend.Traversable      // offset   0: TLAS handle, 0 for an empty scene (vec2<u32>)
	NumAccumFrames        uint32                   // offset   8: frames accumulated so far (u32)
	FrameIndex            uint32                   // offset  12: application frame number (u32)
	Camera                camera.PerspectiveCamera // offset  16: current camera (64 bytes)
	PrevCamera            camera.PerspectiveCamera // offset  80: previous frame's camera (64 bytes)
	BufferIndex           uint32                   // offset 144: instance table copy in use (u32)
	MaxPathLength         uint32                   // offset 148: bounce limit (u32)
	EnableJittering       uint32                   // offset 152: 1 to jitter primary rays (u32)
	ResetFlowBuffer       uint32                   // offset 156: 1 on the first accumulated frame (u32)
	Width                 uint32                   // offset 160: image width (u32)
	Height                uint32                   // offset 164: image height (u32)
	_pad0                 [2]uint32                // offset 168
	InstanceTable         backend.Buffer           // offset 176: active instance table (vec2<u32>)
	GeometryInstanceTable backend.Buffer           // offset 184: geometry-instance table (vec2<u32>)
	MaterialTable         backend.Buffer           // offset 192: material table (vec2<u32>)
	_pad1                 [2]uint32                // offset 200: padding to 208 bytes
}

// Size returns the size of the GPULaunchParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (208)
func (g *GPULaunchParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULaunchParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPULaunchParams) Marshal() []byte {
	buf := make([]byte, GPULaunchParamsSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(g.Traversable))
	binary.LittleEndian.PutUint32(buf[8:], g.NumAccumFrames)
	binary.LittleEndian.PutUint32(buf[12:], g.FrameIndex)
	g.Camera.MarshalTo(buf[16:])
	g.PrevCamera.MarshalTo(buf[80:])
	binary.LittleEndian.PutUint32(buf[144:], g.BufferIndex)
	binary.LittleEndian.PutUint32(buf[148:], g.MaxPathLength)
	binary.LittleEndian.PutUint32(buf[152:], g.EnableJittering)
	binary.LittleEndian.PutUint32(buf[156:], g.ResetFlowBuffer)
	binary.LittleEndian.PutUint32(buf[160:], g.Width)
	binary.LittleEndian.PutUint32(buf[164:], g.Height)
	binary.LittleEndian.PutUint64(buf[176:], uint64(g.InstanceTable))
	binary.LittleEndian.PutUint64(buf[184:], uint64(g.GeometryInstanceTable))
	binary.LittleEndian.PutUint64(buf[192:], uint64(g.MaterialTable))
	return buf
}

// UnmarshalLaunchParams decodes a parameter block written by Marshal.
func UnmarshalLaunchParams(buf []byte) GPULaunchParams {
	return GPULaunchParams{
		Traversable:           backend.Traversable(binary.LittleEndian.Uint64(buf[0:])),
		NumAccumFrames:        binary.LittleEndian.Uint32(buf[8:]),
		FrameIndex:            binary.LittleEndian.Uint32(buf[12:]),
		Camera:                camera.UnmarshalPerspectiveCamera(buf[16:]),
		PrevCamera:            camera.UnmarshalPerspectiveCamera(buf[80:]),
		BufferIndex:           binary.LittleEndian.Uint32(buf[144:]),
		MaxPathLength:         binary.LittleEndian.Uint32(buf[148:]),
		EnableJittering:       binary.LittleEndian.Uint32(buf[152:]),
		ResetFlowBuffer:       binary.LittleEndian.Uint32(buf[156:]),
		Width:                 binary.LittleEndian.Uint32(buf[160:]),
		Height:                binary.LittleEndian.Uint32(buf[164:]),
		InstanceTable:         backend.Buffer(binary.LittleEndian.Uint64(buf[176:])),
		GeometryInstanceTable: backend.Buffer(binary.LittleEndian.Uint64(buf[184:])),
		MaterialTable:         backend.Buffer(binary.LittleEndian.Uint64(buf[192:])),
	}
}
