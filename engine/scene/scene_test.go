package scene

import (
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/engine/accel"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend/software"
	"github.com/Carmen-Shannon/oxy-trace/engine/geometry"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/go-gl/mathgl/mgl32"
)

func newTestScene(t *testing.T, options ...SceneHandlerBuilderOption) (SceneHandler, software.Backend, node.Registry) {
	t.Helper()
	b := software.New()
	s := NewSceneHandler(b, append([]SceneHandlerBuilderOption{WithComputeWorkers(2)}, options...)...)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() {
		s.Finalize()
		_ = b.Close()
	})
	return s, b, node.NewRegistry()
}

func addCube(reg node.Registry, size, x float32) node.Handle {
	return reg.Add(node.NewRenderableNode(
		node.WithModel(model.NewCube(size, nil)),
		node.WithPosition(x, 0, 0),
	))
}

func TestInitialize(t *testing.T) {
	s, _, _ := newTestScene(t, WithMaxInstances(8), WithInstanceBuffers(3))

	if !s.Initialized() {
		t.Fatal("scene should report initialized")
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("second initialize should be a no-op, got %v", err)
	}
	if s.InstanceBufferCount() != 3 || s.InstanceTable(4) != s.InstanceTable(1) {
		t.Fatal("instance tables should form a ring of 3")
	}
	if s.InstanceTable(0).Slots() != 8 || s.InstanceTable(0).Stride() != GPUInstanceDataSize {
		t.Fatalf("unexpected instance table shape %d x %d", s.InstanceTable(0).Slots(), s.InstanceTable(0).Stride())
	}

	st := s.Stats()
	if st.Materials.InUse != 1 {
		t.Fatalf("expected the default material to take one slot; got %d", st.Materials.InUse)
	}
	rec, err := s.MaterialTable().Read(DefaultMaterialSlot)
	if err != nil {
		t.Fatal(err)
	}
	want := material.NewMaterial().GPU()
	if string(rec) != string(want.Marshal()) {
		t.Fatal("default material record not written to slot 0")
	}
	if s.TraversableHandle() != 0 || s.HasGeometry() {
		t.Fatal("a fresh scene has no geometry")
	}
}

func TestUninitialized(t *testing.T) {
	b := software.New()
	defer b.Close()
	s := NewSceneHandler(b)
	reg := node.NewRegistry()

	if s.AddRenderableNode(addCube(reg, 1, 0)) {
		t.Fatal("add before initialize should fail")
	}
	if s.BuildAccelerationStructures() {
		t.Fatal("build before initialize should fail")
	}
	if s.InstanceTable(0) != nil {
		t.Fatal("no tables before initialize")
	}
	s.Finalize()
}

func TestAddRemove(t *testing.T) {
	s, _, reg := newTestScene(t)
	h := addCube(reg, 1, 0)

	tests := []struct {
		name string
		op   func() bool
		want bool
		n    int
	}{
		{"add", func() bool { return s.AddRenderableNode(h) }, true, 1},
		{"add again", func() bool { return s.AddRenderableNode(h) }, true, 1},
		{"remove", func() bool { return s.RemoveRenderableNode(h) }, true, 0},
		{"remove again", func() bool { return s.RemoveRenderableNode(h) }, false, 0},
		{"remove unknown id", func() bool { return s.RemoveRenderableNodeByID(999) }, false, 0},
		{"zero handle", func() bool { return s.AddRenderableNode(node.Handle{}) }, false, 0},
		{"no model", func() bool { return s.AddRenderableNode(reg.Add(node.NewRenderableNode())) }, false, 0},
		{"empty model", func() bool {
			return s.AddRenderableNode(reg.Add(node.NewRenderableNode(node.WithModel(model.NewModel()))))
		}, false, 0},
	}

	for i, tt := range tests {
		if got := tt.op(); got != tt.want {
			t.Errorf("[spec %d] %s: expected %v; got %v", i, tt.name, tt.want, got)
		}
		if got := s.NodeCount(); got != tt.n {
			t.Errorf("[spec %d] %s: expected %d nodes; got %d", i, tt.name, tt.n, got)
		}
	}

	n, _ := h.Resolve()
	if n.HasFlag(node.FlagStoredInScene) {
		t.Fatal("removed node still flagged as stored")
	}
}

func TestAddSetsStoredFlag(t *testing.T) {
	s, _, reg := newTestScene(t)
	h := addCube(reg, 1, 0)
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	n, _ := h.Resolve()
	if !n.HasFlag(node.FlagStoredInScene) {
		t.Fatal("added node not flagged as stored")
	}
	if !s.HasGeometry() {
		t.Fatal("scene should have geometry")
	}
}

func TestExhaustion(t *testing.T) {
	s, b, reg := newTestScene(t, WithMaxInstances(2))

	for i := range 2 {
		if !s.AddRenderableNode(addCube(reg, 1, float32(i))) {
			t.Fatalf("add %d failed", i)
		}
	}
	before := s.Stats()
	buffers := b.Stats().LiveBuffers

	if s.AddRenderableNode(addCube(reg, 2, 5)) {
		t.Fatal("third add should exhaust the instance pool")
	}
	after := s.Stats()
	if after.Nodes != before.Nodes || after.Instances != before.Instances || after.GeometryInstances != before.GeometryInstances {
		t.Fatalf("failed add changed bookkeeping: %+v -> %+v", before, after)
	}
	if after.Geometry.Entries != before.Geometry.Entries || b.Stats().LiveBuffers != buffers {
		t.Fatal("failed add left geometry behind")
	}
}

func TestGeometryInstanceExhaustionRollsBack(t *testing.T) {
	s, b, reg := newTestScene(t, WithMaxGeometryInstances(1))

	if !s.AddRenderableNode(addCube(reg, 1, 0)) {
		t.Fatal("first add failed")
	}
	buffers := b.Stats().LiveBuffers
	if s.AddRenderableNode(addCube(reg, 3, 0)) {
		t.Fatal("second add should exhaust the geometry-instance pool")
	}
	st := s.Stats()
	if st.Instances.InUse != 1 || st.Geometry.Entries != 1 || st.Retired != 1 {
		t.Fatalf("rollback incomplete: %+v", st)
	}
	if !s.BuildAccelerationStructures() {
		t.Fatal("build failed")
	}
	if s.Stats().Retired != 0 || b.Stats().LiveBuffers > buffers+3 {
		t.Fatalf("rolled back geometry not released: %d live buffers", b.Stats().LiveBuffers)
	}
}

func TestSharedGeometry(t *testing.T) {
	s, b, reg := newTestScene(t)
	a := addCube(reg, 1, -3)
	c := addCube(reg, 1, 3)

	if !s.AddRenderableNode(a) || !s.AddRenderableNode(c) {
		t.Fatal("add failed")
	}
	if got := b.Stats().BLASBuilds; got != 1 {
		t.Fatalf("identical cubes should share one BLAS; got %d builds", got)
	}
	ra, _ := s.Resources(a.ID())
	rc, _ := s.Resources(c.ID())
	if ra.Hash != rc.Hash || ra.InstanceSlot == rc.InstanceSlot || ra.GeomInstSlot == rc.GeomInstSlot {
		t.Fatalf("unexpected resources %+v / %+v", ra, rc)
	}
	if !s.BuildAccelerationStructures() {
		t.Fatal("build failed")
	}
	accels := b.Stats().LiveAccels

	if !s.RemoveRenderableNode(a) {
		t.Fatal("remove a failed")
	}
	if !s.BuildAccelerationStructures() {
		t.Fatal("rebuild failed")
	}
	if b.Stats().LiveAccels != accels {
		t.Fatal("shared BLAS released while still referenced")
	}
	hit, ok := b.Trace(s.TraversableHandle(), mgl32.Vec3{3, 0, -10}, mgl32.Vec3{0, 0, 1}, 100)
	if !ok || hit.InstanceID != uint32(rc.InstanceSlot) {
		t.Fatalf("expected a hit on the remaining cube; got %+v %v", hit, ok)
	}

	if !s.RemoveRenderableNode(c) {
		t.Fatal("remove c failed")
	}
	if s.Stats().Retired != 1 {
		t.Fatal("last release should retire the group until the next build")
	}
	if !s.BuildAccelerationStructures() {
		t.Fatal("empty rebuild failed")
	}
	if s.TraversableHandle() != 0 || s.HasGeometry() {
		t.Fatal("empty scene should expose handle 0")
	}
	if got := b.Stats().LiveAccels; got != accels-1 {
		t.Fatalf("expected the BLAS to be released; live accels %d -> %d", accels, got)
	}
}

func TestGeometryDedupDisabled(t *testing.T) {
	s, b, reg := newTestScene(t, WithGeometryDedup(false))
	for i := range 3 {
		if !s.AddRenderableNode(addCube(reg, 1, float32(i*3))) {
			t.Fatal("add failed")
		}
	}
	if got := b.Stats().BLASBuilds; got != 3 {
		t.Fatalf("expected one BLAS per node; got %d", got)
	}
}

func TestHashModeSampled(t *testing.T) {
	s, _, reg := newTestScene(t, WithHashMode(geometry.HashSampled))
	h := addCube(reg, 1, 0)
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	n, _ := h.Resolve()
	res, _ := s.Resources(h.ID())
	if res.Hash != geometry.SampledHash(n.Model()) {
		t.Fatal("resources should carry the sampled hash")
	}
}

func TestRebuildFailureKeepsHandle(t *testing.T) {
	s, b, reg := newTestScene(t)
	if !s.AddRenderableNode(addCube(reg, 1, 0)) || !s.BuildAccelerationStructures() {
		t.Fatal("initial build failed")
	}
	handle := s.TraversableHandle()
	if handle == 0 {
		t.Fatal("expected a handle")
	}

	if !s.AddRenderableNode(addCube(reg, 2, 6)) {
		t.Fatal("add failed")
	}
	b.FailNextBuild(1)
	if s.BuildAccelerationStructures() {
		t.Fatal("build should fail")
	}
	if s.TraversableHandle() != handle {
		t.Fatal("failed build replaced the handle")
	}
	if st := s.Stats(); st.TLAS.Failures != 1 {
		t.Fatalf("expected one failure; got %+v", st.TLAS)
	}
	if _, ok := b.Trace(handle, mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 1}, 100); !ok {
		t.Fatal("previous handle should still trace")
	}

	if !s.BuildAccelerationStructures() {
		t.Fatal("retry failed")
	}
	if _, ok := b.Trace(s.TraversableHandle(), mgl32.Vec3{6, 0, -10}, mgl32.Vec3{0, 0, 1}, 100); !ok {
		t.Fatal("new node missing after retry")
	}
}

func TestRemoveExpiredHandle(t *testing.T) {
	s, _, reg := newTestScene(t)
	h := addCube(reg, 1, 0)
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	reg.Remove(h.ID())

	if s.UpdateNodeTransform(h) {
		t.Fatal("update through an expired handle should fail")
	}
	if !s.RemoveRenderableNode(h) {
		t.Fatal("remove should release resources of an expired node")
	}
	if st := s.Stats(); st.Instances.InUse != 0 || st.GeometryInstances.InUse != 0 {
		t.Fatalf("slots leaked: %+v", st)
	}
}

func TestUpdateNodeTransform(t *testing.T) {
	s, b, reg := newTestScene(t)
	h := addCube(reg, 1, 0)
	if !s.AddRenderableNode(h) || !s.BuildAccelerationStructures() {
		t.Fatal("setup failed")
	}
	res, _ := s.Resources(h.ID())

	n, _ := h.Resolve()
	n.SetPosition(20, 0, 0)
	if !s.UpdateNodeTransform(h) {
		t.Fatal("update failed")
	}
	if s.Stats().TLASState != accel.StateNeedsRebuild {
		t.Fatalf("expected a pending rebuild; got %s", s.Stats().TLASState)
	}
	if err := s.SetActiveBuffer(0); err != nil {
		t.Fatal(err)
	}
	raw, err := s.InstanceTable(0).Read(res.InstanceSlot)
	if err != nil {
		t.Fatal(err)
	}
	rec := UnmarshalInstanceData(raw)
	if rec.Transform[3] != 20 || rec.PrevTransform[3] != 0 {
		t.Fatalf("expected x translation 20 with previous 0; got %v / %v", rec.Transform[3], rec.PrevTransform[3])
	}
	if rec.UniformScale < 0.999 || rec.UniformScale > 1.001 {
		t.Fatalf("expected unit scale; got %v", rec.UniformScale)
	}

	if !s.BuildAccelerationStructures() {
		t.Fatal("rebuild failed")
	}
	if _, ok := b.Trace(s.TraversableHandle(), mgl32.Vec3{20, 0, -10}, mgl32.Vec3{0, 0, 1}, 100); !ok {
		t.Fatal("moved node not hit at its new position")
	}
}

func TestInstanceRingFlush(t *testing.T) {
	s, _, reg := newTestScene(t, WithInstanceBuffers(2))
	h := addCube(reg, 1, 0)
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	res, _ := s.Resources(h.ID())

	for i := range 2 {
		raw, _ := s.InstanceTable(i).Read(res.InstanceSlot)
		if UnmarshalInstanceData(raw) != (GPUInstanceData{}) {
			t.Fatalf("[spec %d] expected copy %d untouched until activated", i, i)
		}
	}
	for i := range 2 {
		if err := s.SetActiveBuffer(i); err != nil {
			t.Fatal(err)
		}
		raw, _ := s.InstanceTable(i).Read(res.InstanceSlot)
		if UnmarshalInstanceData(raw).Transform[0] != 1 {
			t.Fatalf("[spec %d] expected copy %d brought up to date when activated", i, i)
		}
	}

	// copy 0 keeps the old record while copy 1 is refreshed
	n, _ := h.Resolve()
	n.SetPosition(5, 0, 0)
	if !s.UpdateNodeTransform(h) {
		t.Fatal("update failed")
	}
	if err := s.SetActiveBuffer(1); err != nil {
		t.Fatal(err)
	}
	held, _ := s.InstanceTable(0).Read(res.InstanceSlot)
	moved, _ := s.InstanceTable(1).Read(res.InstanceSlot)
	if UnmarshalInstanceData(held).Transform[3] != 0 || UnmarshalInstanceData(moved).Transform[3] != 5 {
		t.Fatalf("expected x 0 in copy 0 and 5 in copy 1; got %v / %v",
			UnmarshalInstanceData(held).Transform[3], UnmarshalInstanceData(moved).Transform[3])
	}

	if !s.RemoveRenderableNode(h) {
		t.Fatal("remove failed")
	}
	raw, _ := s.InstanceTable(0).Read(res.InstanceSlot)
	if UnmarshalInstanceData(raw) == (GPUInstanceData{}) {
		t.Fatal("removal cleared a copy before it was activated")
	}
	if err := s.SetActiveBuffer(0); err != nil {
		t.Fatal(err)
	}
	cleared, _ := s.InstanceTable(0).Read(res.InstanceSlot)
	if UnmarshalInstanceData(cleared) != (GPUInstanceData{}) {
		t.Fatal("removed slot not cleared when the copy was activated")
	}
}

func TestMaterials(t *testing.T) {
	s, _, reg := newTestScene(t, WithMaxMaterials(3))
	glow := material.NewMaterial(material.WithName("glow"), material.WithEmissive([3]float32{1, 1, 1}, 4))

	slot, err := s.AddMaterial(glow)
	if err != nil || slot != 1 {
		t.Fatalf("expected slot 1; got %d, %v", slot, err)
	}
	if again, _ := s.AddMaterial(glow); again != slot {
		t.Fatal("re-adding a material should reuse its slot")
	}

	h := reg.Add(node.NewRenderableNode(node.WithModel(model.NewCube(1, glow))))
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	res, _ := s.Resources(h.ID())
	if res.MaterialSlot != slot || !res.Emissive {
		t.Fatalf("expected emissive material slot %d; got %+v", slot, res)
	}
	raw, _ := s.GeometryInstanceTable().Read(res.GeomInstSlot)
	if UnmarshalGeometryInstanceData(raw).MaterialSlot != uint32(slot) {
		t.Fatal("geometry-instance record has the wrong material slot")
	}

	if err := s.RemoveMaterial(DefaultMaterialSlot); err == nil {
		t.Fatal("default material should not be removable")
	}
	if err := s.RemoveMaterial(slot); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveMaterial(slot); err == nil {
		t.Fatal("second removal should fail")
	}
}

func TestDefaultMaterialSlot(t *testing.T) {
	s, _, reg := newTestScene(t, WithMaxMaterials(4), WithDefaultMaterialSlot(2))

	h := reg.Add(node.NewRenderableNode(node.WithModel(model.NewCube(1, nil))))
	if !s.AddRenderableNode(h) {
		t.Fatal("add failed")
	}
	if res, _ := s.Resources(h.ID()); res.MaterialSlot != 2 {
		t.Fatalf("expected the default material in slot 2; got %d", res.MaterialSlot)
	}
	if err := s.RemoveMaterial(2); err == nil {
		t.Fatal("default material should not be removable")
	}

	slot, err := s.AddMaterial(material.NewMaterial(material.WithName("red")))
	if err != nil || slot == 2 {
		t.Fatalf("expected a slot other than the default; got %d, %v", slot, err)
	}
}

func TestRandomChurn(t *testing.T) {
	const capacity = 32
	s, _, reg := newTestScene(t, WithMaxInstances(capacity))
	rng := rand.New(rand.NewSource(7))
	models := []model.Model{model.NewCube(1, nil), model.NewCube(2, nil), model.NewPlane(4, nil)}

	var present []node.Handle
	for i := range 1000 {
		if len(present) > 0 && (rng.Intn(2) == 0 || len(present) == capacity) {
			k := rng.Intn(len(present))
			if !s.RemoveRenderableNode(present[k]) {
				t.Fatalf("op %d: remove failed", i)
			}
			present[k] = present[len(present)-1]
			present = present[:len(present)-1]
		} else {
			h := reg.Add(node.NewRenderableNode(
				node.WithModel(models[rng.Intn(len(models))]),
				node.WithPosition(rng.Float32()*50, 0, 0),
			))
			if !s.AddRenderableNode(h) {
				t.Fatalf("op %d: add failed with %d present", i, len(present))
			}
			present = append(present, h)
		}

		if i%50 == 0 && !s.BuildAccelerationStructures() {
			t.Fatalf("op %d: build failed", i)
		}
	}

	if s.NodeCount() != len(present) {
		t.Fatalf("expected %d nodes; got %d", len(present), s.NodeCount())
	}
	instSlots := map[int]bool{}
	geomSlots := map[int]bool{}
	tlasIndices := map[int]bool{}
	for _, h := range present {
		res, ok := s.Resources(h.ID())
		if !ok {
			t.Fatalf("node %s missing", h.ID())
		}
		if instSlots[res.InstanceSlot] || geomSlots[res.GeomInstSlot] || tlasIndices[res.TLASIndex] {
			t.Fatalf("duplicate slot in %+v", res)
		}
		if res.TLASIndex < 0 || res.TLASIndex >= len(present) {
			t.Fatalf("TLAS index %d out of range", res.TLASIndex)
		}
		instSlots[res.InstanceSlot] = true
		geomSlots[res.GeomInstSlot] = true
		tlasIndices[res.TLASIndex] = true
	}
	if st := s.Stats(); st.Instances.InUse != len(present) || st.Geometry.Entries > len(models) {
		t.Fatalf("bookkeeping drift: %+v", st)
	}
}
