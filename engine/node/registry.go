package node

import (
	"sort"
	"sync"
	"sync/atomic"
)

type registry struct {
	mu     *sync.RWMutex
	nodes  map[NodeID]RenderableNode
	nextID atomic.Uint64
}

// Registry is the application-owned set of live nodes. It is the authority a Handle checks
// to decide whether the node it names still exists.
// Thread-safe for concurrent access.
type Registry interface {
	// Add registers a node, assigning a fresh ID when the node has none.
	//
	// Parameters:
	//   - n: the node to register
	//
	// Returns:
	//   - Handle: a handle naming the node in this registry
	Add(n RenderableNode) Handle

	// Remove unregisters a node. Outstanding handles to it expire.
	//
	// Parameters:
	//   - id: the node to remove
	//
	// Returns:
	//   - bool: true if the node was registered
	Remove(id NodeID) bool

	// Get looks up a live node.
	//
	// Parameters:
	//   - id: the node ID
	//
	// Returns:
	//   - RenderableNode: the node, or nil
	//   - bool: true if the node is registered
	Get(id NodeID) (RenderableNode, bool)

	// Handle returns a handle for id whether or not the node is currently registered.
	//
	// Parameters:
	//   - id: the node ID
	//
	// Returns:
	//   - Handle: the handle
	Handle(id NodeID) Handle

	// Len returns the number of registered nodes.
	Len() int

	// IDs returns the registered IDs in ascending order.
	IDs() []NodeID
}

var _ Registry = &registry{}

// NewRegistry creates an empty Registry.
//
// Returns:
//   - Registry: the new registry
func NewRegistry() Registry {
	return &registry{
		mu:    &sync.RWMutex{},
		nodes: make(map[NodeID]RenderableNode),
	}
}

func (r *registry) Add(n RenderableNode) Handle {
	if n == nil {
		panic("node: cannot register a nil node")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := n.ID()
	if id == InvalidID {
		for {
			id = NodeID(r.nextID.Add(1))
			if _, taken := r.nodes[id]; !taken {
				break
			}
		}
		n.SetID(id)
	}
	r.nodes[id] = n
	return Handle{reg: r, id: id}
}

func (r *registry) Remove(id NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return false
	}
	delete(r.nodes, id)
	return true
}

func (r *registry) Get(id NodeID) (RenderableNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

func (r *registry) Handle(id NodeID) Handle {
	return Handle{reg: r, id: id}
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

func (r *registry) IDs() []NodeID {
	r.mu.RLock()
	ids := make([]NodeID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Handle is a non-owning reference to a node: an ID plus the registry that can tell whether
// the node still exists. The zero Handle is expired.
type Handle struct {
	reg Registry
	id  NodeID
}

// ID returns the node ID the handle names, even when expired.
func (h Handle) ID() NodeID {
	return h.id
}

// Resolve returns the node if it is still registered.
//
// Returns:
//   - RenderableNode: the live node, or nil
//   - bool: false if the handle has expired
func (h Handle) Resolve() (RenderableNode, bool) {
	if h.reg == nil || h.id == InvalidID {
		return nil, false
	}
	return h.reg.Get(h.id)
}

// Expired reports whether the node is no longer registered.
func (h Handle) Expired() bool {
	_, ok := h.Resolve()
	return !ok
}
