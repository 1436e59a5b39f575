package node

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// RenderableNodeBuilderOption is a functional option for configuring a RenderableNode during construction.
type RenderableNodeBuilderOption func(*renderableNode)

// WithID sets the ID of the node.
//
// Parameters:
//   - id: unique identifier for the node
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the ID
func WithID(id NodeID) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.id = id
	}
}

// WithName sets the label used in logs.
//
// Parameters:
//   - name: the node name
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the name
func WithName(name string) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.name = name
	}
}

// WithModel sets the mesh Model for the node.
//
// Parameters:
//   - m: the Model to associate
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the Model
func WithModel(m model.Model) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.mdl = m
	}
}

// WithPosition sets the initial world position.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.position = [3]float32{x, y, z}
	}
}

// WithRotation sets the initial Euler rotation in radians.
//
// Parameters:
//   - rx, ry, rz: rotation angles
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the rotation
func WithRotation(rx, ry, rz float32) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.rotation = [3]float32{rx, ry, rz}
	}
}

// WithScale sets the initial per-axis scale.
//
// Parameters:
//   - sx, sy, sz: scale factors
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the scale
func WithScale(sx, sy, sz float32) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.scale = [3]float32{sx, sy, sz}
	}
}

// WithWorldTransform sets an explicit world transform, ignoring position, rotation and scale.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the transform
func WithWorldTransform(m mgl32.Mat4) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		n.explicit = &m
	}
}

// WithEmissive marks the node as emissive.
//
// Parameters:
//   - emissive: true to set the emissive flag
//
// Returns:
//   - RenderableNodeBuilderOption: functional option to set the flag
func WithEmissive(emissive bool) RenderableNodeBuilderOption {
	return func(n *renderableNode) {
		if emissive {
			n.flags.Store(n.flags.Load() | uint32(FlagEmissive))
		}
	}
}
