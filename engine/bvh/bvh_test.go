package bvh

import (
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/go-gl/mathgl/mgl32"
)

func unitBoxAt(x, y, z float32) common.AABB {
	return common.AABB{
		Min: mgl32.Vec3{x - 0.5, y - 0.5, z - 0.5},
		Max: mgl32.Vec3{x + 0.5, y + 0.5, z + 0.5},
	}
}

func TestBuildEmpty(t *testing.T) {
	tree := Build(nil)
	if len(tree.Nodes) != 0 || tree.Bounds().Valid() {
		t.Fatalf("expected empty tree, got %d nodes", len(tree.Nodes))
	}
	if hit, _ := tree.Traverse(NewRay(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}), 100, nil); hit != -1 {
		t.Fatal("empty tree reported a hit")
	}
}

func TestBuildCoversEveryItem(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	items := make([]Item, 257)
	for i := range items {
		items[i] = Item{
			Bounds: unitBoxAt(rng.Float32()*100, rng.Float32()*100, rng.Float32()*100),
			Index:  i,
		}
	}
	tree := Build(items)

	seen := make(map[int32]bool)
	for _, idx := range tree.Order {
		if seen[idx] {
			t.Fatalf("item %d appears twice", idx)
		}
		seen[idx] = true
	}
	if len(seen) != len(items) {
		t.Fatalf("expected %d leaf entries, got %d", len(items), len(seen))
	}
	if len(tree.Nodes) > 2*len(items)-1 {
		t.Fatalf("too many nodes: %d", len(tree.Nodes))
	}
	if uint64(len(tree.Marshal())) > SerializedSize(len(items)) {
		t.Fatal("serialized tree exceeds the advertised bound")
	}

	for i, n := range tree.Nodes {
		if n.IsLeaf() {
			if n.LeafCount > MaxLeafSize {
				t.Fatalf("node %d holds %d items", i, n.LeafCount)
			}
			continue
		}
		for _, child := range []int32{n.Left, n.Right} {
			c := tree.Nodes[child]
			for a := range 3 {
				if c.Min[a] < n.Min[a] || c.Max[a] > n.Max[a] {
					t.Fatalf("child %d escapes parent %d bounds", child, i)
				}
			}
		}
	}
}

func TestTraverseFindsClosest(t *testing.T) {
	var items []Item
	for i := range 10 {
		items = append(items, Item{Bounds: unitBoxAt(0, 0, float32(i*3)), Index: i})
	}
	tree := Build(items)

	leaf := func(item int, tMax float32) (float32, bool) {
		// distance to the near face of the box along +Z from z=-10
		d := float32(item*3) - 0.5 + 10
		return d, d < tMax
	}
	hit, d := tree.Traverse(NewRay(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 1}), 1000, leaf)
	if hit != 0 || d != 9.5 {
		t.Fatalf("expected item 0 at 9.5, got item %d at %f", hit, d)
	}

	if hit, _ := tree.Traverse(NewRay(mgl32.Vec3{5, 5, -10}, mgl32.Vec3{0, 0, 1}), 1000, leaf); hit != -1 {
		t.Fatalf("ray outside every box hit item %d", hit)
	}
}

func TestNodeMarshalRoundTrip(t *testing.T) {
	n := Node{Min: mgl32.Vec3{-1, -2, -3}, Max: mgl32.Vec3{1, 2, 3}, Left: -1, Right: -1, LeafFirst: 7, LeafCount: 2}
	buf := n.Marshal()
	if len(buf) != NodeSize {
		t.Fatalf("expected %d bytes, got %d", NodeSize, len(buf))
	}
	if got := Unmarshal(buf); got != n {
		t.Fatalf("round trip mismatch: %+v != %+v", got, n)
	}
}

func TestIntersectTriangle(t *testing.T) {
	a, b, c := mgl32.Vec3{-1, -1, 5}, mgl32.Vec3{1, -1, 5}, mgl32.Vec3{0, 1, 5}

	specs := []struct {
		origin, dir mgl32.Vec3
		hit         bool
		dist        float32
	}{
		{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, true, 5},
		{mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 1}, false, 0},
		{mgl32.Vec3{3, 0, 0}, mgl32.Vec3{0, 0, 1}, false, 0},
		{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, false, 0},
	}

	for index, spec := range specs {
		d, ok := IntersectTriangle(NewRay(spec.origin, spec.dir), a, b, c)
		if ok != spec.hit {
			t.Errorf("[spec %d] expected hit=%v; got %v", index, spec.hit, ok)
			continue
		}
		if ok && d != spec.dist {
			t.Errorf("[spec %d] expected distance %f; got %f", index, spec.dist, d)
		}
	}
}
