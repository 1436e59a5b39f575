package model

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
)

// Triangle is one triangle as three indices into the model's vertex streams.
type Triangle [3]uint32

// Surface is a group of triangles sharing one material.
type Surface struct {
	// Name is an optional identifier used in logs.
	Name string

	// Triangles are the surface's triangles. A surface with no triangles is skipped at build time.
	Triangles []Triangle

	// Material is the optional material reference. Nil resolves to the scene's default material slot.
	Material material.Material
}

// TriangleCount returns the number of triangles in the surface.
func (s Surface) TriangleCount() int {
	return len(s.Triangles)
}
