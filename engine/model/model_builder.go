package model

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/go-gl/mathgl/mgl32"
)

// ModelBuilderOption is a functional option for configuring a Model.
type ModelBuilderOption func(*model)

// WithName sets the model identifier.
//
// Parameters:
//   - name: the model name
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithPositions sets the model-space vertex positions.
//
// Parameters:
//   - positions: the vertex positions
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithPositions(positions []mgl32.Vec3) ModelBuilderOption {
	return func(m *model) {
		m.positions = positions
	}
}

// WithNormals sets the per-vertex normals.
//
// Parameters:
//   - normals: the vertex normals, indexed like the positions
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithNormals(normals []mgl32.Vec3) ModelBuilderOption {
	return func(m *model) {
		m.normals = normals
	}
}

// WithUVs sets the per-vertex texture coordinates.
//
// Parameters:
//   - uvs: the texture coordinates, indexed like the positions
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithUVs(uvs []mgl32.Vec2) ModelBuilderOption {
	return func(m *model) {
		m.uvs = uvs
	}
}

// WithSurface appends a surface with the given triangles and optional material.
//
// Parameters:
//   - triangles: the surface's triangles
//   - mat: the material reference, or nil for the scene default
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithSurface(triangles []Triangle, mat material.Material) ModelBuilderOption {
	return func(m *model) {
		m.surfaces = append(m.surfaces, Surface{Triangles: triangles, Material: mat})
	}
}

// WithSurfaces replaces the model's surfaces.
//
// Parameters:
//   - surfaces: the surfaces
//
// Returns:
//   - ModelBuilderOption: option function to apply
func WithSurfaces(surfaces ...Surface) ModelBuilderOption {
	return func(m *model) {
		m.surfaces = surfaces
	}
}
