// package common contains plain types and helpers shared across the engine. They are not interface-wrapped,
// just plain structs and functions that express commonly used data.
package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. The zero value is not empty; use EmptyAABB.
type AABB struct {
	// Min is the lower corner.
	Min mgl32.Vec3
	// Max is the upper corner.
	Max mgl32.Vec3
}

// EmptyAABB returns a box that contains nothing and absorbs the first point it is extended with.
//
// Returns:
//   - AABB: the inverted empty box
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Valid reports whether the box contains at least one point.
func (b AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Extend returns the box grown to contain p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both boxes.
func (b AABB) Union(o AABB) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent returns the size of the box along each axis.
func (b AABB) Extent() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// LongestAxis returns the index (0, 1, 2) of the largest extent.
func (b AABB) LongestAxis() int {
	e := b.Extent()
	axis := 0
	if e[1] > e[axis] {
		axis = 1
	}
	if e[2] > e[axis] {
		axis = 2
	}
	return axis
}

// Transform returns the world-space box enclosing the eight transformed corners.
//
// Parameters:
//   - m: the transform to apply
//
// Returns:
//   - AABB: the enclosing box, or the empty box if b is empty
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if !b.Valid() {
		return b
	}
	out := EmptyAABB()
	for corner := range 8 {
		p := mgl32.Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if corner&1 != 0 {
			p[0] = b.Max[0]
		}
		if corner&2 != 0 {
			p[1] = b.Max[1]
		}
		if corner&4 != 0 {
			p[2] = b.Max[2]
		}
		out = out.Extend(mgl32.TransformCoordinate(p, m))
	}
	return out
}
