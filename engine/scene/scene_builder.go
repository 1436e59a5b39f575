package scene

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/geometry"
)

// SceneHandlerBuilderOption is a functional option for configuring a SceneHandler.
// Use the With* functions to create options.
type SceneHandlerBuilderOption func(s *sceneHandler)

// WithMaxInstances sets the capacity of the instance slot pool and the instance tables.
//
// Parameters:
//   - n: the number of instance slots, values below 1 are ignored
//
// Returns:
//   - SceneHandlerBuilderOption: option function to apply
func WithMaxInstances(n int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if n > 0 {
			s.maxInstances = n
		}
	}
}

// WithMaxGeometryInstances sets the capacity of the geometry-instance slot pool and table.
//
// Parameters:
//   - n: the number of geometry-instance slots, values below 1 are ignored
//
// Returns:
//   - SceneHandlerBuilderOption: option function to apply
func WithMaxGeometryInstances(n int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if n > 0 {
			s.maxGeometryInstances = n
		}
	}
}

// WithMaxMaterials sets the capacity of the material slot pool and table.
//
// Parameters:
//   - n: the number of material slots, values below 1 are ignored
//
// Returns:
//   - SceneHandlerBuilderOption: option function to apply
func WithMaxMaterials(n int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if n > 0 {
			s.maxMaterials = n
		}
	}
}

// WithHashMode selects how geometry content is hashed for sharing.
func WithHashMode(mode geometry.HashMode) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		s.hashMode = mode
	}
}

// WithGeometryDedup toggles geometry sharing. When disabled every node builds its own geometry group.
func WithGeometryDedup(enabled bool) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		s.dedup = enabled
	}
}

// WithDefaultMaterialSlot sets the material slot used for surfaces without a registered material.
func WithDefaultMaterialSlot(slot int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if slot >= 0 {
			s.defaultMaterialSlot = slot
		}
	}
}

// WithComputeWorkers sets the size of the worker pool used for vertex preparation.
//
// Parameters:
//   - n: the maximum worker count, values below 1 are ignored
//
// Returns:
//   - SceneHandlerBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if n > 0 {
			s.computeWorkers = n
		}
	}
}

// WithInstanceBuffers sets how many copies of the instance table are kept, one per frame in flight.
func WithInstanceBuffers(n int) SceneHandlerBuilderOption {
	return func(s *sceneHandler) {
		if n > 0 {
			s.instanceBuffers = n
		}
	}
}
