package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUPerspectiveCameraSource is the canonical WGSL definition of the PerspectiveCamera struct.
// Matches PerspectiveCamera layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/camera.wgsl
var GPUPerspectiveCameraSource string

// PerspectiveCameraSize is the byte size of an encoded PerspectiveCamera.
const PerspectiveCameraSize = 64

// PerspectiveCamera is the GPU-aligned camera snapshot carried in the launch parameters.
// Size: 64 bytes (std430 / WGSL aligned).
type PerspectiveCamera struct {
	Position [3]float32 // offset  0: world-space eye position (vec3<f32>)
	FovY     float32    // offset 12: vertical field of view in radians (f32)
	Right    [3]float32 // offset 16: unit right vector (vec3<f32>)
	Aspect   float32    // offset 28: width / height (f32)
	Up       [3]float32 // offset 32: unit up vector (vec3<f32>)
	_pad0    float32    // offset 44
	Forward  [3]float32 // offset 48: unit view direction (vec3<f32>)
	_pad1    float32    // offset 60: padding to 64 bytes
}

// Size returns the size of the PerspectiveCamera struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *PerspectiveCamera) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the camera into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *PerspectiveCamera) Marshal() []byte {
	buf := make([]byte, PerspectiveCameraSize)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the camera into buf, which must hold at least PerspectiveCameraSize bytes.
func (g *PerspectiveCamera) MarshalTo(buf []byte) {
	put := func(off int, v [3]float32, w float32) {
		for i := range 3 {
			binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(v[i]))
		}
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(w))
	}
	put(0, g.Position, g.FovY)
	put(16, g.Right, g.Aspect)
	put(32, g.Up, 0)
	put(48, g.Forward, 0)
}

// UnmarshalPerspectiveCamera decodes a camera written by MarshalTo.
func UnmarshalPerspectiveCamera(buf []byte) PerspectiveCamera {
	get := func(off int) ([3]float32, float32) {
		var v [3]float32
		for i := range 3 {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+i*4:]))
		}
		return v, math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12:]))
	}
	var c PerspectiveCamera
	c.Position, c.FovY = get(0)
	c.Right, c.Aspect = get(16)
	c.Up, _ = get(32)
	c.Forward, _ = get(48)
	return c
}
