package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrNoPositions is returned by Validate for a model without vertices.
	ErrNoPositions = errors.New("model has no vertex positions")

	// ErrNoTriangles is returned by Validate when no surface carries a triangle.
	ErrNoTriangles = errors.New("model has no triangles")

	// ErrIndexOutOfRange is returned by Validate when a triangle references a missing vertex.
	ErrIndexOutOfRange = errors.New("triangle index out of range")
)

// model is the implementation of the Model interface.
type model struct {
	mu        *sync.RWMutex
	name      string
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	uvs       []mgl32.Vec2
	surfaces  []Surface
}

// Model defines the interface for mesh data attached to a renderable node.
// Vertex streams are shared by every surface; each surface holds its own triangle list and
// an optional material reference. Normals and UVs may be shorter than positions, missing
// entries take defaults when the geometry is built.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Positions returns the model-space vertex positions.
	//
	// Returns:
	//   - []mgl32.Vec3: the positions (not a copy, do not modify)
	Positions() []mgl32.Vec3

	// Normals returns the per-vertex normals, possibly empty.
	//
	// Returns:
	//   - []mgl32.Vec3: the normals (not a copy, do not modify)
	Normals() []mgl32.Vec3

	// UVs returns the per-vertex texture coordinates, possibly empty.
	//
	// Returns:
	//   - []mgl32.Vec2: the texture coordinates (not a copy, do not modify)
	UVs() []mgl32.Vec2

	// Surfaces returns the model's surfaces.
	//
	// Returns:
	//   - []Surface: the surfaces (not a copy, do not modify)
	Surfaces() []Surface

	// VertexCount returns the number of vertex positions.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// TriangleCount returns the total number of triangles across all surfaces.
	//
	// Returns:
	//   - int: the triangle count
	TriangleCount() int

	// Bounds returns the model-space bounding box of the positions.
	//
	// Returns:
	//   - common.AABB: the bounds, empty if the model has no positions
	Bounds() common.AABB

	// Validate reports whether the model can be turned into geometry.
	//
	// Returns:
	//   - error: nil if the model has positions, at least one triangle and in-range indices
	Validate() error
}

var _ Model = &model{}

// NewModel creates a Model from the provided options.
//
// Parameters:
//   - options: functional options supplying the vertex streams and surfaces
//
// Returns:
//   - Model: the newly created model
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{
		mu: &sync.RWMutex{},
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *model) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *model) Positions() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions
}

func (m *model) Normals() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.normals
}

func (m *model) UVs() []mgl32.Vec2 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uvs
}

func (m *model) Surfaces() []Surface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.surfaces
}

func (m *model) VertexCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

func (m *model) TriangleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.surfaces {
		n += len(s.Triangles)
	}
	return n
}

func (m *model) Bounds() common.AABB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := common.EmptyAABB()
	for _, p := range m.positions {
		b = b.Extend(p)
	}
	return b
}

func (m *model) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.positions) == 0 {
		return ErrNoPositions
	}
	count := uint32(len(m.positions))
	triangles := 0
	for si, s := range m.surfaces {
		for ti, tri := range s.Triangles {
			if tri[0] >= count || tri[1] >= count || tri[2] >= count {
				return fmt.Errorf("surface %d triangle %d %v with %d vertices: %w", si, ti, tri, count, ErrIndexOutOfRange)
			}
		}
		triangles += len(s.Triangles)
	}
	if triangles == 0 {
		return ErrNoTriangles
	}
	return nil
}
