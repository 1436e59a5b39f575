package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// approx compares component-wise with an absolute tolerance; values near zero come out of
// sin/cos as small non-zero floats.
func approx(a, b mgl32.Vec3) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-4 {
			return false
		}
	}
	return true
}

func TestCameraDirtyFlags(t *testing.T) {
	c := NewCamera(WithPose(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}))

	if !c.IsDirty() {
		t.Fatal("a new camera should start dirty")
	}
	c.SetDirty(false)

	tests := []struct {
		name     string
		op       func()
		dirty    bool
		settings bool
	}{
		{"same pose", func() { c.LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}) }, false, false},
		{"new pose", func() { c.LookAt(mgl32.Vec3{1, 0, 5}, mgl32.Vec3{}) }, true, false},
		{"same fov", func() { c.SetFovY(c.FovY()) }, false, false},
		{"new fov", func() { c.SetFovY(1) }, false, true},
		{"new aspect", func() { c.SetAspect(2) }, false, true},
	}

	for i, tt := range tests {
		tt.op()
		if c.IsDirty() != tt.dirty || c.HasSettingsChanged() != tt.settings {
			t.Errorf("[spec %d] %s: expected dirty=%v settings=%v; got %v %v",
				i, tt.name, tt.dirty, tt.settings, c.IsDirty(), c.HasSettingsChanged())
		}
		c.SetDirty(false)
	}
}

func TestCameraSnapshot(t *testing.T) {
	c := NewCamera(WithPose(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}), WithAspect(1.5))
	snap := c.Snapshot()

	if !approx(snap.Forward, mgl32.Vec3{0, 0, -1}) || !approx(snap.Up, mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected basis: forward %v up %v", snap.Forward, snap.Up)
	}
	if !approx(snap.Right, mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("unexpected right vector %v", snap.Right)
	}
	if snap.Aspect != 1.5 || snap.Position != [3]float32{0, 0, 5} {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if snap.Size() != PerspectiveCameraSize {
		t.Fatalf("expected %d bytes; got %d", PerspectiveCameraSize, snap.Size())
	}
	if back := UnmarshalPerspectiveCamera(snap.Marshal()); back != snap {
		t.Fatalf("round trip mismatch: %+v != %+v", back, snap)
	}
}

func TestOrbitController(t *testing.T) {
	cc := NewOrbitController(
		WithRadius(10),
		WithElevation(0),
		WithRadiusBounds(2, 20),
		WithElevationBounds(-1, 1),
	)
	if !approx(cc.Position(), mgl32.Vec3{0, 0, 10}) {
		t.Fatalf("expected position on +Z; got %v", cc.Position())
	}

	cc.Orbit(math.Pi/2, 0)
	if !approx(cc.Position(), mgl32.Vec3{10, 0, 0}) {
		t.Fatalf("expected position on +X after a quarter orbit; got %v", cc.Position())
	}
	cc.Orbit(0, 5)
	if cc.Elevation() != 1 {
		t.Fatalf("elevation should clamp to 1; got %v", cc.Elevation())
	}
	cc.Zoom(100)
	if cc.Radius() != 2 {
		t.Fatalf("radius should clamp to 2; got %v", cc.Radius())
	}
	cc.SetRadius(50)
	if cc.Radius() != 20 {
		t.Fatalf("radius should clamp to 20; got %v", cc.Radius())
	}

	cc.SetElevation(0)
	cc.SetAzimuth(0)
	cc.Pan(3, 0)
	if !approx(cc.Target(), mgl32.Vec3{3, 0, 0}) || !approx(cc.Position(), mgl32.Vec3{3, 0, 20}) {
		t.Fatalf("pan should move target and position together; got %v / %v", cc.Target(), cc.Position())
	}
	cc.SetTarget(mgl32.Vec3{})
	if !approx(cc.Position(), mgl32.Vec3{0, 0, 20}) {
		t.Fatalf("unexpected position after retarget %v", cc.Position())
	}
}

func TestOrbitControllerSpeeds(t *testing.T) {
	cc := NewOrbitController(
		WithRadius(10),
		WithElevation(0),
		WithTarget(1, 0, 0),
		WithZoomSpeed(2),
		WithPanSpeed(0.5),
	)

	cc.Zoom(1)
	if cc.Radius() != 8 || !approx(cc.Position(), mgl32.Vec3{1, 0, 8}) {
		t.Fatalf("expected radius 8 at (1, 0, 8); got %v at %v", cc.Radius(), cc.Position())
	}
	cc.Pan(2, 0)
	if !approx(cc.Target(), mgl32.Vec3{2, 0, 0}) || !approx(cc.Position(), mgl32.Vec3{2, 0, 8}) {
		t.Fatalf("expected a half-speed pan; got %v / %v", cc.Target(), cc.Position())
	}
}

func TestCameraFollowsController(t *testing.T) {
	cc := NewOrbitController(WithRadius(5), WithElevation(0))
	c := NewCamera(WithController(cc))
	c.SetDirty(false)

	c.Update()
	if c.IsDirty() {
		t.Fatal("update without movement should not dirty the camera")
	}
	cc.Orbit(0.5, 0)
	c.Update()
	if !c.IsDirty() || !approx(c.Position(), cc.Position()) {
		t.Fatal("camera did not follow the controller")
	}
	if c.Controller() != cc {
		t.Fatal("controller not attached")
	}
}
