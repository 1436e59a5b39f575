package bvh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a half-line with a precomputed reciprocal direction.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
	invDir mgl32.Vec3
}

// NewRay builds a ray. The direction does not need to be normalized.
func NewRay(origin, dir mgl32.Vec3) Ray {
	r := Ray{Origin: origin, Dir: dir}
	for i := range 3 {
		r.invDir[i] = 1 / dir[i]
	}
	return r
}

// HitBox reports whether the ray enters the box before tMax, using the slab test.
func (r *Ray) HitBox(lo, hi mgl32.Vec3, tMax float32) bool {
	tNear, tFar := float32(0), tMax
	for i := range 3 {
		t0 := (lo[i] - r.Origin[i]) * r.invDir[i]
		t1 := (hi[i] - r.Origin[i]) * r.invDir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf leaves the interval unchanged.
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if tNear > tFar {
			return false
		}
	}
	return true
}

// LeafFunc tests the item with the given index against the ray and returns the hit
// distance when it is closer than tMax.
type LeafFunc func(item int, tMax float32) (float32, bool)

// Traverse walks the tree front to back and returns the closest hit reported by leaf.
//
// Parameters:
//   - r: the ray
//   - tMax: the far limit of the ray
//   - leaf: the per-item intersection callback
//
// Returns:
//   - int: the item index of the closest hit, or -1
//   - float32: the hit distance, or tMax if nothing was hit
func (t *Tree) Traverse(r Ray, tMax float32, leaf LeafFunc) (int, float32) {
	if len(t.Nodes) == 0 {
		return -1, tMax
	}

	closest := -1
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		ni := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[ni]
		if !r.HitBox(n.Min, n.Max, tMax) {
			continue
		}
		if n.IsLeaf() {
			for i := n.LeafFirst; i < n.LeafFirst+n.LeafCount; i++ {
				item := int(t.Order[i])
				if d, ok := leaf(item, tMax); ok && d < tMax {
					tMax = d
					closest = item
				}
			}
			continue
		}
		stack = append(stack, n.Right, n.Left)
	}
	return closest, tMax
}

// IntersectTriangle returns the distance along r to triangle (a, b, c) using the
// Moller-Trumbore test, or false when the ray misses or hits behind its origin.
func IntersectTriangle(r Ray, a, b, c mgl32.Vec3) (float32, bool) {
	const eps = 1e-7
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(float64(det)) < eps {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	d := e2.Dot(q) * inv
	if d <= eps {
		return 0, false
	}
	return d, true
}
