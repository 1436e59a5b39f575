package renderer

import (
	"math"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend/software"
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
)

// primaryRayTMax bounds primary rays.
const primaryRayTMax = 1e30

// KernelStats counts the work done by the host primary-ray kernel.
type KernelStats struct {
	Launches atomic.Uint64
	Rays     atomic.Uint64
	Hits     atomic.Uint64

	// LastHits is the hit count of the most recent launch.
	LastHits atomic.Uint64
}

// HitRatio returns hits per ray over all launches.
func (k *KernelStats) HitRatio() float64 {
	rays := k.Rays.Load()
	if rays == 0 {
		return 0
	}
	return float64(k.Hits.Load()) / float64(rays)
}

// PrimaryRay returns the world-space direction through pixel (x, y) of a width x height image.
// jx and jy offset the sample inside the pixel, 0.5 is the pixel centre.
func PrimaryRay(c camera.PerspectiveCamera, x, y, width, height uint32, jx, jy float32) mgl32.Vec3 {
	tanHalf := float32(math.Tan(float64(c.FovY) / 2))
	ndcX := (2*(float32(x)+jx)/float32(width) - 1) * tanHalf * c.Aspect
	ndcY := (1 - 2*(float32(y)+jy)/float32(height)) * tanHalf
	dir := mgl32.Vec3(c.Forward).
		Add(mgl32.Vec3(c.Right).Mul(ndcX)).
		Add(mgl32.Vec3(c.Up).Mul(ndcY))
	return dir.Normalize()
}

// jitter derives a per-pixel, per-frame sub-pixel offset in [0, 1).
func jitter(x, y, frame uint32) (float32, float32) {
	h := x*0x8da6b343 ^ y*0xd8163841 ^ frame*0xcb1ab31f
	h ^= h >> 16
	h *= 0x7feb352d
	h ^= h >> 15
	return float32(h&0xffff) / 65536, float32(h>>16) / 65536
}

// PrimaryRayKernel returns a host kernel for the software backend that traces one primary ray per
// pixel against the frame's traversable and counts the hits in stats.
//
// Parameters:
//   - stats: the counters to update, may be nil
//
// Returns:
//   - software.KernelFunc: the kernel
func PrimaryRayKernel(stats *KernelStats) software.KernelFunc {
	if stats == nil {
		stats = &KernelStats{}
	}
	return func(tracer software.Tracer, raw []byte, width, height uint32) error {
		stats.Launches.Add(1)
		if len(raw) < GPULaunchParamsSize {
			stats.LastHits.Store(0)
			return nil
		}
		p := UnmarshalLaunchParams(raw)
		origin := mgl32.Vec3(p.Camera.Position)

		var hits uint64
		for y := range height {
			for x := range width {
				jx, jy := float32(0.5), float32(0.5)
				if p.EnableJittering != 0 {
					jx, jy = jitter(x, y, p.FrameIndex)
				}
				if p.Traversable == 0 {
					continue
				}
				dir := PrimaryRay(p.Camera, x, y, width, height, jx, jy)
				if _, ok := tracer.Trace(p.Traversable, origin, dir, primaryRayTMax); ok {
					hits++
				}
			}
		}
		stats.Rays.Add(uint64(width) * uint64(height))
		stats.Hits.Add(hits)
		stats.LastHits.Store(hits)
		return nil
	}
}
