package geometry

import (
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// vertexChunk is the number of vertices converted per pool task.
const vertexChunk = 4096

var defaultNormal = mgl32.Vec3{0, 1, 0}

// BuildVertices converts a model's vertex streams into GPU vertices. Missing or degenerate normals
// become (0,1,0), missing UVs become (0,0), and every vertex gets a tangent orthogonal to its normal.
// Models larger than one chunk are converted in parallel on pool when it is non-nil.
//
// Parameters:
//   - mdl: the source model
//   - pool: an optional worker pool for large models
//
// Returns:
//   - []model.GPUVertex: one record per position
//   - common.AABB: the model-space bounds
func BuildVertices(mdl model.Model, pool worker.DynamicWorkerPool) ([]model.GPUVertex, common.AABB) {
	positions := mdl.Positions()
	normals := mdl.Normals()
	uvs := mdl.UVs()
	out := make([]model.GPUVertex, len(positions))

	convert := func(lo, hi int) common.AABB {
		bounds := common.EmptyAABB()
		for i := lo; i < hi; i++ {
			n := defaultNormal
			if i < len(normals) {
				n = common.SafeNormalize(normals[i], defaultNormal)
			}
			var uv mgl32.Vec2
			if i < len(uvs) {
				uv = uvs[i]
			}
			out[i] = model.GPUVertex{
				Position: positions[i],
				Normal:   n,
				Tangent:  common.OrthonormalTangent(n),
				TexCoord: uv,
			}
			bounds = bounds.Extend(positions[i])
		}
		return bounds
	}

	if pool == nil || len(positions) <= vertexChunk {
		return out, convert(0, len(positions))
	}

	chunks := (len(positions) + vertexChunk - 1) / vertexChunk
	partial := make([]common.AABB, chunks)
	var wg sync.WaitGroup
	for c := range chunks {
		wg.Add(1)
		lo := c * vertexChunk
		hi := min(lo+vertexChunk, len(positions))
		pool.SubmitTask(worker.Task{
			ID: c,
			Do: func() (any, error) {
				defer wg.Done()
				partial[c] = convert(lo, hi)
				return nil, nil
			},
		})
	}
	wg.Wait()

	bounds := common.EmptyAABB()
	for _, b := range partial {
		bounds = bounds.Union(b)
	}
	return out, bounds
}
