package node

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeID is the stable identity of a renderable node. Zero is never a valid ID.
type NodeID uint64

// InvalidID is the zero NodeID, rejected by the scene.
const InvalidID NodeID = 0

// String formats the ID for logs.
func (id NodeID) String() string {
	return "node#" + strconv.FormatUint(uint64(id), 10)
}

// StateFlags are per-node bits written by both the application and the scene.
type StateFlags uint32

const (
	// FlagStoredInScene is set by the scene while it holds GPU resources for the node.
	FlagStoredInScene StateFlags = 1 << iota

	// FlagEmissive marks a node whose instance contributes emitted light.
	FlagEmissive

	// FlagTransformDirty is set when the world transform changed since the scene last read it.
	FlagTransformDirty
)

type renderableNode struct {
	mu *sync.RWMutex

	id    NodeID
	name  string
	mdl   model.Model
	flags atomic.Uint32

	position [3]float32
	rotation [3]float32
	scale    [3]float32

	// explicit, when set, overrides the position/rotation/scale decomposition
	explicit  *mgl32.Mat4
	transform mgl32.Mat4
}

// RenderableNode is an application-owned scene entity: an identity, an optional mesh Model
// and a world transform. The scene never owns a node; it observes it through a Handle.
type RenderableNode interface {
	// ID returns the node's identity.
	//
	// Returns:
	//   - NodeID: the node ID, InvalidID until assigned
	ID() NodeID

	// SetID assigns the node's identity. Used by the Registry when the node has none.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id NodeID)

	// Name returns a label for logs.
	//
	// Returns:
	//   - string: the node name
	Name() string

	// Model returns the mesh model, or nil if the node has no geometry.
	//
	// Returns:
	//   - model.Model: the model or nil
	Model() model.Model

	// SetModel replaces the mesh model.
	//
	// Parameters:
	//   - m: the new model
	SetModel(m model.Model)

	// WorldTransform returns the current model-to-world transform.
	//
	// Returns:
	//   - mgl32.Mat4: the world transform
	WorldTransform() mgl32.Mat4

	// SetWorldTransform sets an explicit world transform, replacing position, rotation and scale.
	//
	// Parameters:
	//   - m: the world transform
	SetWorldTransform(m mgl32.Mat4)

	// SetPosition updates the translation component.
	//
	// Parameters:
	//   - x, y, z: the world position
	SetPosition(x, y, z float32)

	// SetRotation updates the Euler rotation in radians, applied in Y, X, Z order.
	//
	// Parameters:
	//   - rx, ry, rz: rotation angles around each axis
	SetRotation(rx, ry, rz float32)

	// SetScale updates the scale component.
	//
	// Parameters:
	//   - sx, sy, sz: per-axis scale
	SetScale(sx, sy, sz float32)

	// Position returns the translation component.
	//
	// Returns:
	//   - x, y, z: the world position
	Position() (x, y, z float32)

	// Flags returns the current state flags.
	//
	// Returns:
	//   - StateFlags: the flag bits
	Flags() StateFlags

	// HasFlag reports whether every bit in f is set.
	//
	// Parameters:
	//   - f: the flag bits to test
	//
	// Returns:
	//   - bool: true if all bits are set
	HasFlag(f StateFlags) bool

	// SetFlag sets or clears the bits in f.
	//
	// Parameters:
	//   - f: the flag bits
	//   - on: true to set, false to clear
	SetFlag(f StateFlags, on bool)
}

var _ RenderableNode = &renderableNode{}

// NewRenderableNode creates a node with an identity transform.
//
// Parameters:
//   - options: functional options to configure the node
//
// Returns:
//   - RenderableNode: the newly created node
func NewRenderableNode(options ...RenderableNodeBuilderOption) RenderableNode {
	n := &renderableNode{
		mu:        &sync.RWMutex{},
		scale:     [3]float32{1, 1, 1},
		transform: mgl32.Ident4(),
	}
	for _, opt := range options {
		opt(n)
	}
	n.rebuildTransform()
	return n
}

func (n *renderableNode) ID() NodeID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

func (n *renderableNode) SetID(id NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
}

func (n *renderableNode) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.name == "" {
		return n.id.String()
	}
	return n.name
}

func (n *renderableNode) Model() model.Model {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.mdl
}

func (n *renderableNode) SetModel(m model.Model) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mdl = m
}

func (n *renderableNode) WorldTransform() mgl32.Mat4 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.transform
}

func (n *renderableNode) SetWorldTransform(m mgl32.Mat4) {
	n.mu.Lock()
	n.explicit = &m
	n.rebuildTransform()
	n.mu.Unlock()
	n.SetFlag(FlagTransformDirty, true)
}

func (n *renderableNode) SetPosition(x, y, z float32) {
	n.mu.Lock()
	n.position = [3]float32{x, y, z}
	n.explicit = nil
	n.rebuildTransform()
	n.mu.Unlock()
	n.SetFlag(FlagTransformDirty, true)
}

func (n *renderableNode) SetRotation(rx, ry, rz float32) {
	n.mu.Lock()
	n.rotation = [3]float32{rx, ry, rz}
	n.explicit = nil
	n.rebuildTransform()
	n.mu.Unlock()
	n.SetFlag(FlagTransformDirty, true)
}

func (n *renderableNode) SetScale(sx, sy, sz float32) {
	n.mu.Lock()
	n.scale = [3]float32{sx, sy, sz}
	n.explicit = nil
	n.rebuildTransform()
	n.mu.Unlock()
	n.SetFlag(FlagTransformDirty, true)
}

func (n *renderableNode) Position() (x, y, z float32) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.explicit != nil {
		col := n.explicit.Col(3)
		return col[0], col[1], col[2]
	}
	return n.position[0], n.position[1], n.position[2]
}

func (n *renderableNode) Flags() StateFlags {
	return StateFlags(n.flags.Load())
}

func (n *renderableNode) HasFlag(f StateFlags) bool {
	return StateFlags(n.flags.Load())&f == f
}

func (n *renderableNode) SetFlag(f StateFlags, on bool) {
	for {
		old := n.flags.Load()
		next := old &^ uint32(f)
		if on {
			next = old | uint32(f)
		}
		if n.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// rebuildTransform recomputes the cached world transform as T * Ry * Rx * Rz * S.
// Caller must hold the write lock.
func (n *renderableNode) rebuildTransform() {
	if n.explicit != nil {
		n.transform = *n.explicit
		return
	}
	n.transform = mgl32.Translate3D(n.position[0], n.position[1], n.position[2]).
		Mul4(mgl32.HomogRotate3DY(n.rotation[1])).
		Mul4(mgl32.HomogRotate3DX(n.rotation[0])).
		Mul4(mgl32.HomogRotate3DZ(n.rotation[2])).
		Mul4(mgl32.Scale3D(n.scale[0], n.scale[1], n.scale[2]))
}
