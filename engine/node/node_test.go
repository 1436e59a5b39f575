package node

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

func TestRegistryHandles(t *testing.T) {
	reg := NewRegistry()

	a := reg.Add(NewRenderableNode(WithModel(model.NewCube(1, nil))))
	b := reg.Add(NewRenderableNode(WithID(42)))

	if a.ID() == InvalidID {
		t.Fatal("expected an assigned ID")
	}
	if b.ID() != 42 {
		t.Fatalf("expected preset ID 42, got %d", b.ID())
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", reg.Len())
	}

	n, ok := a.Resolve()
	if !ok || n.Model() == nil {
		t.Fatal("expected handle to resolve to a node with a model")
	}

	if !reg.Remove(a.ID()) {
		t.Fatal("expected remove to succeed")
	}
	if !a.Expired() {
		t.Fatal("handle must expire after removal")
	}
	if reg.Remove(a.ID()) {
		t.Fatal("second remove must report nothing removed")
	}

	var zero Handle
	if !zero.Expired() {
		t.Fatal("zero handle must be expired")
	}
	if h := reg.Handle(InvalidID); !h.Expired() {
		t.Fatal("handle for the invalid ID must be expired")
	}
}

func TestAssignedIDsSkipTaken(t *testing.T) {
	reg := NewRegistry()
	reg.Add(NewRenderableNode(WithID(1)))
	h := reg.Add(NewRenderableNode())
	if h.ID() == 1 {
		t.Fatal("assigned ID collided with a preset one")
	}
	if ids := reg.IDs(); len(ids) != 2 || ids[0] != 1 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestTransform(t *testing.T) {
	n := NewRenderableNode(WithPosition(1, 2, 3), WithScale(2, 2, 2))

	got := mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, n.WorldTransform())
	if !got.ApproxEqualThreshold(mgl32.Vec3{3, 2, 3}, 1e-6) {
		t.Fatalf("unexpected transformed point %v", got)
	}

	n.SetFlag(FlagTransformDirty, false)
	n.SetWorldTransform(mgl32.Translate3D(-5, 0, 0))
	if x, _, _ := n.Position(); x != -5 {
		t.Fatalf("expected explicit translation, got x=%f", x)
	}
	if !n.HasFlag(FlagTransformDirty) {
		t.Fatal("transform change must set the dirty flag")
	}

	n.SetPosition(0, 0, 0)
	if !n.WorldTransform().ApproxEqualThreshold(mgl32.Scale3D(2, 2, 2), 1e-6) {
		t.Fatalf("setting a component must drop the explicit transform, got %v", n.WorldTransform())
	}

	placed := NewRenderableNode(WithPosition(1, 1, 1), WithWorldTransform(mgl32.Translate3D(4, 0, 0)))
	if x, y, _ := placed.Position(); x != 4 || y != 0 {
		t.Fatalf("expected the built-in transform to win, got x=%f y=%f", x, y)
	}
}

func TestFlags(t *testing.T) {
	n := NewRenderableNode(WithEmissive(true))
	if !n.HasFlag(FlagEmissive) {
		t.Fatal("expected emissive flag")
	}

	n.SetFlag(FlagStoredInScene, true)
	if !n.HasFlag(FlagStoredInScene | FlagEmissive) {
		t.Fatalf("expected both flags, got %b", n.Flags())
	}

	n.SetFlag(FlagStoredInScene, false)
	if n.HasFlag(FlagStoredInScene) || !n.HasFlag(FlagEmissive) {
		t.Fatalf("clearing one flag disturbed another: %b", n.Flags())
	}
}
