package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUVertexSource is the canonical WGSL definition of the Vertex struct read by the traversal kernel.
// Matches GPUVertex layout exactly (48 bytes, tightly packed f32 arrays).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertex is the GPU-aligned representation of a single geometry vertex.
// Size: 48 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0: model-space position (12 bytes)
	Normal   [3]float32 // offset 12: unit shading normal (12 bytes)
	Tangent  [3]float32 // offset 24: unit tangent derived from the normal (12 bytes)
	TexCoord [2]float32 // offset 36: UV texture coordinate (8 bytes)
	_pad     float32    // offset 44: padding to 48 bytes
}

// GPUVertexSize is the byte stride between consecutive GPUVertex records.
const GPUVertexSize = 48

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, GPUVertexSize)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the vertex into buf, which must hold at least GPUVertexSize bytes.
//
// Parameters:
//   - buf: the destination slice
func (g *GPUVertex) MarshalTo(buf []byte) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Position[i]))
		binary.LittleEndian.PutUint32(buf[12+i*4:], math.Float32bits(g.Normal[i]))
		binary.LittleEndian.PutUint32(buf[24+i*4:], math.Float32bits(g.Tangent[i]))
	}
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(g.TexCoord[0]))
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(g.TexCoord[1]))
	binary.LittleEndian.PutUint32(buf[44:], 0)
}

// GPUTriangleSize is the byte stride of one triangle in a triangle index buffer (three uint32).
const GPUTriangleSize = 12

// MarshalTriangles packs triangles into a little-endian uint32 index buffer.
//
// Parameters:
//   - triangles: the triangles to pack
//
// Returns:
//   - []byte: len(triangles)*12 bytes
func MarshalTriangles(triangles []Triangle) []byte {
	buf := make([]byte, len(triangles)*GPUTriangleSize)
	for i, tri := range triangles {
		off := i * GPUTriangleSize
		binary.LittleEndian.PutUint32(buf[off:], tri[0])
		binary.LittleEndian.PutUint32(buf[off+4:], tri[1])
		binary.LittleEndian.PutUint32(buf[off+8:], tri[2])
	}
	return buf
}
