package software

import (
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

// Hit is the closest intersection found by Trace.
type Hit struct {
	// InstanceID is the ID of the instance hit, or 0 when tracing a BLAS directly.
	InstanceID uint32
	// Primitive is the triangle index within the BLAS.
	Primitive int
	// T is the distance along the ray direction.
	T float32
}

// Tracer casts rays against built acceleration structures.
type Tracer interface {
	// Trace returns the closest hit along the ray within tMax, honouring instance masks.
	//
	// Parameters:
	//   - handle: a TLAS or BLAS traversable; 0 traces against nothing
	//   - origin: the ray origin in world space
	//   - dir: the ray direction in world space
	//   - tMax: the far limit
	//
	// Returns:
	//   - Hit: the closest hit
	//   - bool: whether anything was hit
	Trace(handle backend.Traversable, origin, dir mgl32.Vec3, tMax float32) (Hit, bool)
}

// KernelFunc is the host program run by LaunchKernel with a copy of the launch parameter buffer.
type KernelFunc func(tracer Tracer, params []byte, width, height uint32) error

func (s *software) Trace(handle backend.Traversable, origin, dir mgl32.Vec3, tMax float32) (Hit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.handles[handle]
	if !ok {
		return Hit{}, false
	}
	a := s.accels[id]
	if a.kind == backend.AccelBottom {
		prim, t := traceBottom(a, bvh.NewRay(origin, dir), tMax)
		return Hit{Primitive: prim, T: t}, prim >= 0
	}

	hit := Hit{Primitive: -1}
	ray := bvh.NewRay(origin, dir)
	_, tHit := a.tree.Traverse(ray, tMax, func(item int, limit float32) (float32, bool) {
		inst := a.instances[item]
		if inst.Mask&backend.DefaultInstanceMask == 0 {
			return 0, false
		}
		blasID, ok := s.handles[inst.Traversable]
		if !ok {
			return 0, false
		}
		inv := a.inverses[item]
		local := bvh.NewRay(mgl32.TransformCoordinate(origin, inv), mgl32.TransformNormal(dir, inv))
		prim, t := traceBottom(s.accels[blasID], local, limit)
		if prim < 0 {
			return 0, false
		}
		hit.InstanceID = inst.InstanceID
		hit.Primitive = prim
		return t, true
	})
	hit.T = tHit
	return hit, hit.Primitive >= 0
}

// traceBottom keeps the object-space direction unnormalized so t is shared with world space.
func traceBottom(a *accel, ray bvh.Ray, tMax float32) (int, float32) {
	return a.tree.Traverse(ray, tMax, func(item int, _ float32) (float32, bool) {
		tri := a.triangles[item]
		return bvh.IntersectTriangle(ray, tri[0], tri[1], tri[2])
	})
}

func (s *software) Bounds(handle backend.Traversable) common.AABB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.handles[handle]; ok {
		return s.accels[id].bounds
	}
	return common.EmptyAABB()
}
