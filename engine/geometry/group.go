package geometry

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/accel"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
)

// SurfaceBuffers is the device copy of one non-empty surface.
type SurfaceBuffers struct {
	// Index is the surface's position in model.Surfaces().
	Index          int
	TriangleBuffer backend.Buffer
	TriangleCount  uint32
	Material       material.Material
}

// Group is the device geometry shared by every node with the same geometry hash: one vertex
// buffer, one triangle buffer per non-empty surface and one BLAS. Immutable after NewGroup.
type Group struct {
	Hash         Hash
	VertexBuffer backend.Buffer
	VertexCount  uint32
	Surfaces     []SurfaceBuffers
	BLAS         accel.BLAS
	Bounds       common.AABB
}

// Traversable returns the BLAS handle.
func (g *Group) Traversable() backend.Traversable {
	return g.BLAS.Traversable
}

// TriangleCount returns the number of triangles across all surfaces.
func (g *Group) TriangleCount() int {
	n := 0
	for _, s := range g.Surfaces {
		n += int(s.TriangleCount)
	}
	return n
}

// NewGroup uploads a model and builds its BLAS on stream s. Any failure releases everything
// created so far.
//
// Parameters:
//   - b: the backend
//   - s: the stream to build on
//   - mdl: the model; must pass Validate
//   - pool: an optional worker pool for vertex conversion
//
// Returns:
//   - *Group: the built group
//   - error: a validation error wrapping errs.ErrInvalidInput (including a model with no triangles),
//     or a backend error wrapping errs.ErrBackendBuild
func NewGroup(b backend.Backend, s backend.Stream, mdl model.Model, pool worker.DynamicWorkerPool) (*Group, error) {
	if err := mdl.Validate(); err != nil {
		return nil, fmt.Errorf("model %q: %w", mdl.Name(), errors.Join(errs.ErrInvalidInput, err))
	}

	surfaces := mdl.Surfaces()
	g := &Group{}
	ok := false
	defer func() {
		if !ok {
			g.Destroy(b)
		}
	}()

	vertices, bounds := BuildVertices(mdl, pool)
	data := make([]byte, len(vertices)*model.GPUVertexSize)
	for i := range vertices {
		vertices[i].MarshalTo(data[i*model.GPUVertexSize:])
	}
	var err error
	if g.VertexBuffer, err = upload(b, mdl.Name()+" vertices", data); err != nil {
		return nil, err
	}
	g.VertexCount = uint32(len(vertices))
	g.Bounds = bounds

	in := backend.BuildInputs{Kind: backend.AccelBottom}
	for i, surf := range surfaces {
		if len(surf.Triangles) == 0 {
			continue
		}
		buf, err := upload(b, fmt.Sprintf("%s surface %d", mdl.Name(), i), model.MarshalTriangles(surf.Triangles))
		if err != nil {
			return nil, err
		}
		g.Surfaces = append(g.Surfaces, SurfaceBuffers{
			Index:          i,
			TriangleBuffer: buf,
			TriangleCount:  uint32(len(surf.Triangles)),
			Material:       surf.Material,
		})
		in.Triangles = append(in.Triangles, backend.TriangleInput{
			VertexBuffer:  g.VertexBuffer,
			VertexStride:  model.GPUVertexSize,
			VertexCount:   g.VertexCount,
			IndexBuffer:   buf,
			TriangleCount: uint32(len(surf.Triangles)),
		})
	}

	if g.BLAS, err = accel.BuildBLAS(b, s, in); err != nil {
		return nil, fmt.Errorf("model %q: %w", mdl.Name(), err)
	}
	ok = true
	return g, nil
}

func upload(b backend.Backend, label string, data []byte) (backend.Buffer, error) {
	buf, err := b.CreateBuffer(label, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", label, errors.Join(errs.ErrBackendBuild, err))
	}
	view, err := b.MapBuffer(buf)
	if err != nil {
		b.DestroyBuffer(buf)
		return 0, fmt.Errorf("map %s: %w", label, errors.Join(errs.ErrBackendBuild, err))
	}
	copy(view, data)
	if err := b.UnmapBuffer(buf); err != nil {
		b.DestroyBuffer(buf)
		return 0, fmt.Errorf("unmap %s: %w", label, errors.Join(errs.ErrBackendBuild, err))
	}
	return buf, nil
}

// Destroy releases the group's device resources. Safe to call on a partially built group.
func (g *Group) Destroy(b backend.Backend) {
	g.BLAS.Destroy(b)
	for _, s := range g.Surfaces {
		b.DestroyBuffer(s.TriangleBuffer)
	}
	g.Surfaces = nil
	if g.VertexBuffer != 0 {
		b.DestroyBuffer(g.VertexBuffer)
		g.VertexBuffer = 0
	}
}
