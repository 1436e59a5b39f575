// Package bvh builds bounding volume hierarchies over boxes by median split and
// traverses them on the host. The flattened node layout matches the WGSL BVHNode
// struct read by the traversal kernel.
package bvh

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeSize is the byte size of one serialized Node.
const NodeSize = 64

// MaxLeafSize is the largest number of items stored in one leaf.
const MaxLeafSize = 4

// Node is one flattened BVH node. Interior nodes have Left/Right >= 0 and LeafCount 0;
// leaves have Left = Right = -1 and reference LeafCount entries of Tree.Order from LeafFirst.
type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

// IsLeaf reports whether the node references items directly.
func (n *Node) IsLeaf() bool {
	return n.LeafCount > 0
}

// Marshal serializes the node as two vec4 bounds followed by four i32 and two words of padding.
//
// Returns:
//   - []byte: NodeSize bytes
func (n *Node) Marshal() []byte {
	buf := make([]byte, NodeSize)
	n.MarshalTo(buf)
	return buf
}

// MarshalTo writes the node into buf, which must hold at least NodeSize bytes.
func (n *Node) MarshalTo(buf []byte) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(n.Min[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(n.Max[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:], 0)
	binary.LittleEndian.PutUint32(buf[28:], 0)
	binary.LittleEndian.PutUint32(buf[32:], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[36:], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[40:], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(buf[44:], uint32(n.LeafCount))
	clear(buf[48:NodeSize])
}

// Unmarshal reads a node written by MarshalTo.
func Unmarshal(buf []byte) Node {
	var n Node
	for i := range 3 {
		n.Min[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		n.Max[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[16+i*4:]))
	}
	n.Left = int32(binary.LittleEndian.Uint32(buf[32:]))
	n.Right = int32(binary.LittleEndian.Uint32(buf[36:]))
	n.LeafFirst = int32(binary.LittleEndian.Uint32(buf[40:]))
	n.LeafCount = int32(binary.LittleEndian.Uint32(buf[44:]))
	return n
}

// Item is one box to index, tagged with the caller's index.
type Item struct {
	Bounds common.AABB
	Index  int
}

// Tree is a built hierarchy. Order maps leaf slots back to item indices.
type Tree struct {
	Nodes []Node
	Order []int32
}

// Bounds returns the root box, or an empty box for an empty tree.
func (t *Tree) Bounds() common.AABB {
	if len(t.Nodes) == 0 {
		return common.EmptyAABB()
	}
	return common.AABB{Min: t.Nodes[0].Min, Max: t.Nodes[0].Max}
}

// Marshal serializes the nodes followed by the leaf order as little-endian uint32.
//
// Returns:
//   - []byte: len(Nodes)*NodeSize + len(Order)*4 bytes
func (t *Tree) Marshal() []byte {
	buf := make([]byte, len(t.Nodes)*NodeSize+len(t.Order)*4)
	for i := range t.Nodes {
		t.Nodes[i].MarshalTo(buf[i*NodeSize:])
	}
	off := len(t.Nodes) * NodeSize
	for i, idx := range t.Order {
		binary.LittleEndian.PutUint32(buf[off+i*4:], uint32(idx))
	}
	return buf
}

// SerializedSize returns the byte size Marshal produces for a tree built over n items,
// as an upper bound usable before the build (a median-split tree has at most 2n-1 nodes).
func SerializedSize(n int) uint64 {
	if n == 0 {
		return NodeSize
	}
	return uint64(2*n-1)*NodeSize + uint64(n)*4
}

// Build constructs a hierarchy over items by recursive median split on the longest
// centroid axis. An empty input yields a tree with no nodes.
//
// Parameters:
//   - items: the boxes to index; reordered in place
//
// Returns:
//   - *Tree: the built tree
func Build(items []Item) *Tree {
	t := &Tree{
		Nodes: make([]Node, 0, max(2*len(items)-1, 0)),
		Order: make([]int32, 0, len(items)),
	}
	if len(items) == 0 {
		return t
	}
	t.build(items)
	return t
}

func (t *Tree) build(items []Item) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	bounds := common.EmptyAABB()
	centroids := common.EmptyAABB()
	for _, it := range items {
		bounds = bounds.Union(it.Bounds)
		centroids = centroids.Extend(it.Bounds.Center())
	}
	t.Nodes[idx].Min = bounds.Min
	t.Nodes[idx].Max = bounds.Max

	if len(items) <= MaxLeafSize || centroids.Extent() == (mgl32.Vec3{}) {
		t.Nodes[idx].LeafFirst = int32(len(t.Order))
		t.Nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			t.Order = append(t.Order, int32(it.Index))
		}
		return idx
	}

	axis := centroids.LongestAxis()
	sort.Slice(items, func(i, j int) bool {
		return items[i].Bounds.Center()[axis] < items[j].Bounds.Center()[axis]
	})

	mid := len(items) / 2
	left := t.build(items[:mid])
	right := t.build(items[mid:])
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}
