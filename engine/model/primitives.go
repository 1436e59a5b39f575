package model

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/go-gl/mathgl/mgl32"
)

// cubeFaces lists the outward normal and the two in-plane axes of each cube face.
var cubeFaces = [6][3]mgl32.Vec3{
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
}

// NewCube builds an axis-aligned cube centred on the origin with 24 vertices (four per face,
// so each face has its own flat normal) and a single surface.
//
// Parameters:
//   - size: the edge length
//   - mat: the surface material, or nil
//
// Returns:
//   - Model: the cube model
func NewCube(size float32, mat material.Material) Model {
	h := size / 2
	positions := make([]mgl32.Vec3, 0, 24)
	normals := make([]mgl32.Vec3, 0, 24)
	uvs := make([]mgl32.Vec2, 0, 24)
	triangles := make([]Triangle, 0, 12)

	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, face := range cubeFaces {
		n, u, v := face[0], face[1], face[2]
		base := uint32(len(positions))
		for _, c := range corners {
			p := n.Mul(h).Add(u.Mul(c[0] * h)).Add(v.Mul(c[1] * h))
			positions = append(positions, p)
			normals = append(normals, n)
			uvs = append(uvs, mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2})
		}
		triangles = append(triangles,
			Triangle{base, base + 1, base + 2},
			Triangle{base, base + 2, base + 3},
		)
	}

	return NewModel(
		WithName(fmt.Sprintf("cube_%g", size)),
		WithPositions(positions),
		WithNormals(normals),
		WithUVs(uvs),
		WithSurface(triangles, mat),
	)
}

// NewPlane builds a square in the XZ plane facing +Y.
//
// Parameters:
//   - size: the edge length
//   - mat: the surface material, or nil
//
// Returns:
//   - Model: the plane model
func NewPlane(size float32, mat material.Material) Model {
	h := size / 2
	return NewModel(
		WithName(fmt.Sprintf("plane_%g", size)),
		WithPositions([]mgl32.Vec3{{-h, 0, h}, {h, 0, h}, {h, 0, -h}, {-h, 0, -h}}),
		WithNormals([]mgl32.Vec3{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}}),
		WithUVs([]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}),
		WithSurface([]Triangle{{0, 1, 2}, {0, 2, 3}}, mat),
	)
}

// NewUVSphere builds a latitude/longitude sphere centred on the origin.
// Segments and rings are clamped to at least 3 and 2.
//
// Parameters:
//   - radius: the sphere radius
//   - segments: the number of longitudinal slices
//   - rings: the number of latitudinal bands
//   - mat: the surface material, or nil
//
// Returns:
//   - Model: the sphere model
func NewUVSphere(radius float32, segments, rings int, mat material.Material) Model {
	segments = max(segments, 3)
	rings = max(rings, 2)

	positions := make([]mgl32.Vec3, 0, (segments+1)*(rings+1))
	normals := make([]mgl32.Vec3, 0, cap(positions))
	uvs := make([]mgl32.Vec2, 0, cap(positions))

	for r := 0; r <= rings; r++ {
		v := float64(r) / float64(rings)
		theta := v * math.Pi
		for s := 0; s <= segments; s++ {
			u := float64(s) / float64(segments)
			phi := u * 2 * math.Pi
			n := mgl32.Vec3{
				float32(math.Sin(theta) * math.Cos(phi)),
				float32(math.Cos(theta)),
				float32(math.Sin(theta) * math.Sin(phi)),
			}
			positions = append(positions, n.Mul(radius))
			normals = append(normals, n)
			uvs = append(uvs, mgl32.Vec2{float32(u), float32(v)})
		}
	}

	stride := uint32(segments + 1)
	triangles := make([]Triangle, 0, segments*rings*2)
	for r := range uint32(rings) {
		for s := range uint32(segments) {
			a := r*stride + s
			b := a + stride
			if r != 0 {
				triangles = append(triangles, Triangle{a, a + 1, b})
			}
			if r != uint32(rings)-1 {
				triangles = append(triangles, Triangle{a + 1, b + 1, b})
			}
		}
	}

	return NewModel(
		WithName(fmt.Sprintf("sphere_%g_%dx%d", radius, segments, rings)),
		WithPositions(positions),
		WithNormals(normals),
		WithUVs(uvs),
		WithSurface(triangles, mat),
	)
}
