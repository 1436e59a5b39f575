package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAABB(t *testing.T) {
	box := EmptyAABB()
	if box.Valid() {
		t.Fatal("empty box reported valid")
	}

	box = box.Extend(mgl32.Vec3{1, 2, 3}).Extend(mgl32.Vec3{-1, 0, 5})
	if box.Min != (mgl32.Vec3{-1, 0, 3}) || box.Max != (mgl32.Vec3{1, 2, 5}) {
		t.Fatalf("unexpected bounds %v", box)
	}
	if axis := box.LongestAxis(); axis != 0 {
		t.Fatalf("expected ties to resolve to axis 0, got %d", axis)
	}
	if c := box.Center(); c != (mgl32.Vec3{0, 1, 4}) {
		t.Fatalf("unexpected center %v", c)
	}

	moved := box.Transform(mgl32.Translate3D(10, 0, 0))
	if moved.Min[0] != 9 || moved.Max[0] != 11 {
		t.Fatalf("unexpected translated bounds %v", moved)
	}

	if empty := EmptyAABB().Transform(mgl32.Translate3D(1, 1, 1)); empty.Valid() {
		t.Fatal("transforming an empty box must keep it empty")
	}
}

func TestGrowSize(t *testing.T) {
	specs := []struct {
		current, required, alignment, exp uint64
	}{
		{0, 10, 1, 10},
		{0, 10, 256, 256},
		{512, 100, 256, 512},
		{512, 513, 256, 768},
		{512, 512, 256, 512},
	}

	for index, spec := range specs {
		if got := GrowSize(spec.current, spec.required, spec.alignment); got != spec.exp {
			t.Errorf("[spec %d] expected %d; got %d", index, spec.exp, got)
		}
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 3, 4); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := Coalesce("", ""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
