package scene

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUSceneSource is the canonical WGSL definition of the InstanceData and GeometryInstanceData
// structs. Matches GPUInstanceData and GPUGeometryInstanceData exactly.
//
//go:embed assets/scene.wgsl
var GPUSceneSource string

// GPUInstanceData is the per-instance-slot record read by the kernel.
// Size: 160 bytes.
type GPUInstanceData struct {
	Transform     [12]float32 // offset   0: 3x4 row-major object-to-world
	PrevTransform [12]float32 // offset  48: previous frame's transform, for reprojection
	NormalMatrix  [12]float32 // offset  96: inverse-transpose of the upper 3x3, rows padded to vec4
	UniformScale  float32     // offset 144
	IsEmissive    uint32      // offset 148
	EmissiveScale float32     // offset 152
	GeomInstSlot  uint32      // offset 156
}

// GPUInstanceDataSize is the byte stride of the instance table.
const GPUInstanceDataSize = 160

// Size returns the size of the GPUInstanceData struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUInstanceData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the record into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 160-byte buffer ready for GPU upload.
func (g *GPUInstanceData) Marshal() []byte {
	buf := make([]byte, GPUInstanceDataSize)
	putFloats(buf[0:], g.Transform[:])
	putFloats(buf[48:], g.PrevTransform[:])
	putFloats(buf[96:], g.NormalMatrix[:])
	binary.LittleEndian.PutUint32(buf[144:], math.Float32bits(g.UniformScale))
	binary.LittleEndian.PutUint32(buf[148:], g.IsEmissive)
	binary.LittleEndian.PutUint32(buf[152:], math.Float32bits(g.EmissiveScale))
	binary.LittleEndian.PutUint32(buf[156:], g.GeomInstSlot)
	return buf
}

// GPUGeometryInstanceData is the per-geometry-instance-slot record read by the kernel.
// Size: 48 bytes.
type GPUGeometryInstanceData struct {
	VertexBuffer   uint64 // offset  0: backend buffer handle
	TriangleBuffer uint64 // offset  8: backend buffer handle of the first surface
	VertexCount    uint32 // offset 16
	TriangleCount  uint32 // offset 20
	MaterialSlot   uint32 // offset 24
	GeomInstSlot   uint32 // offset 28
	SurfaceCount   uint32 // offset 32
	_pad           [3]uint32
}

// GPUGeometryInstanceDataSize is the byte stride of the geometry-instance table.
const GPUGeometryInstanceDataSize = 48

// Size returns the size of the GPUGeometryInstanceData struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUGeometryInstanceData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the record into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUGeometryInstanceData) Marshal() []byte {
	buf := make([]byte, GPUGeometryInstanceDataSize)
	binary.LittleEndian.PutUint64(buf[0:], g.VertexBuffer)
	binary.LittleEndian.PutUint64(buf[8:], g.TriangleBuffer)
	binary.LittleEndian.PutUint32(buf[16:], g.VertexCount)
	binary.LittleEndian.PutUint32(buf[20:], g.TriangleCount)
	binary.LittleEndian.PutUint32(buf[24:], g.MaterialSlot)
	binary.LittleEndian.PutUint32(buf[28:], g.GeomInstSlot)
	binary.LittleEndian.PutUint32(buf[32:], g.SurfaceCount)
	return buf
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

// UnmarshalInstanceData decodes a record written by GPUInstanceData.Marshal.
func UnmarshalInstanceData(buf []byte) GPUInstanceData {
	var g GPUInstanceData
	for i := range 12 {
		g.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		g.PrevTransform[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[48+i*4:]))
		g.NormalMatrix[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[96+i*4:]))
	}
	g.UniformScale = math.Float32frombits(binary.LittleEndian.Uint32(buf[144:]))
	g.IsEmissive = binary.LittleEndian.Uint32(buf[148:])
	g.EmissiveScale = math.Float32frombits(binary.LittleEndian.Uint32(buf[152:]))
	g.GeomInstSlot = binary.LittleEndian.Uint32(buf[156:])
	return g
}

// UnmarshalGeometryInstanceData decodes a record written by GPUGeometryInstanceData.Marshal.
func UnmarshalGeometryInstanceData(buf []byte) GPUGeometryInstanceData {
	return GPUGeometryInstanceData{
		VertexBuffer:   binary.LittleEndian.Uint64(buf[0:]),
		TriangleBuffer: binary.LittleEndian.Uint64(buf[8:]),
		VertexCount:    binary.LittleEndian.Uint32(buf[16:]),
		TriangleCount:  binary.LittleEndian.Uint32(buf[20:]),
		MaterialSlot:   binary.LittleEndian.Uint32(buf[24:]),
		GeomInstSlot:   binary.LittleEndian.Uint32(buf[28:]),
		SurfaceCount:   binary.LittleEndian.Uint32(buf[32:]),
	}
}
