package backend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ReadTriangles decodes the corners of every triangle t describes from the host copies of its
// vertex and index buffers, appending them to dst.
//
// Parameters:
//   - dst: the slice to append to
//   - t: the triangle input
//   - vertices: the contents of t.VertexBuffer
//   - indices: the contents of t.IndexBuffer
//
// Returns:
//   - [][3]mgl32.Vec3: dst with the triangles appended
//   - error: ErrInvalidBuild when the buffers are too small or an index is out of range
func ReadTriangles(dst [][3]mgl32.Vec3, t TriangleInput, vertices, indices []byte) ([][3]mgl32.Vec3, error) {
	if t.VertexStride < 12 || uint64(len(vertices)) < uint64(t.VertexCount)*uint64(t.VertexStride) {
		return dst, fmt.Errorf("%w: vertex buffer holds %d bytes for %d vertices of stride %d",
			ErrInvalidBuild, len(vertices), t.VertexCount, t.VertexStride)
	}
	if uint64(len(indices)) < uint64(t.TriangleCount)*12 {
		return dst, fmt.Errorf("%w: index buffer holds %d bytes for %d triangles",
			ErrInvalidBuild, len(indices), t.TriangleCount)
	}

	vertex := func(i uint32) mgl32.Vec3 {
		off := uint64(i) * uint64(t.VertexStride)
		return mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(vertices[off+8:])),
		}
	}
	for tri := range t.TriangleCount {
		var corners [3]mgl32.Vec3
		for k := range 3 {
			idx := binary.LittleEndian.Uint32(indices[tri*12+uint32(k)*4:])
			if idx >= t.VertexCount {
				return dst, fmt.Errorf("%w: index %d out of range (%d vertices)", ErrInvalidBuild, idx, t.VertexCount)
			}
			corners[k] = vertex(idx)
		}
		dst = append(dst, corners)
	}
	return dst, nil
}
