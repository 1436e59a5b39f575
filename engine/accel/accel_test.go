package accel

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend/software"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

func triangleInputs(t *testing.T, b backend.Backend) backend.BuildInputs {
	t.Helper()
	verts := []model.GPUVertex{
		{Position: [3]float32{-1, -1, 0}},
		{Position: [3]float32{1, -1, 0}},
		{Position: [3]float32{0, 1, 0}},
	}
	vb, _ := b.CreateBuffer("vertices", uint64(len(verts)*model.GPUVertexSize))
	view, _ := b.MapBuffer(vb)
	for i := range verts {
		verts[i].MarshalTo(view[i*model.GPUVertexSize:])
	}
	_ = b.UnmapBuffer(vb)

	idx := model.MarshalTriangles([]model.Triangle{{0, 1, 2}})
	ib, _ := b.CreateBuffer("indices", uint64(len(idx)))
	view, _ = b.MapBuffer(ib)
	copy(view, idx)
	_ = b.UnmapBuffer(ib)

	return backend.BuildInputs{Triangles: []backend.TriangleInput{{
		VertexBuffer:  vb,
		VertexStride:  model.GPUVertexSize,
		VertexCount:   3,
		IndexBuffer:   ib,
		TriangleCount: 1,
	}}}
}

func setup(t *testing.T) (software.Backend, backend.Stream, BLAS) {
	t.Helper()
	b := software.New()
	t.Cleanup(func() { _ = b.Close() })
	s, err := b.CreateStream()
	if err != nil {
		t.Fatal(err)
	}
	blas, err := BuildBLAS(b, s, triangleInputs(t, b))
	if err != nil {
		t.Fatalf("BuildBLAS: %v", err)
	}
	return b, s, blas
}

func instanceAt(blas BLAS, id uint32, x float32) backend.Instance {
	return backend.Instance{
		Transform:   common.RowMajor3x4(mgl32.Translate3D(x, 0, 0)),
		InstanceID:  id,
		Mask:        backend.DefaultInstanceMask,
		Traversable: blas.Traversable,
	}
}

func TestBuildBLASReleasesScratch(t *testing.T) {
	b, s, blas := setup(t)
	if blas.Traversable == 0 || blas.Accel == 0 || blas.Output == 0 {
		t.Fatalf("incomplete BLAS: %+v", blas)
	}
	// vertices, indices and output survive; scratch is gone
	if got := b.Stats().LiveBuffers; got != 3 {
		t.Fatalf("expected 3 live buffers, got %d", got)
	}

	before := b.Stats().LiveBuffers
	b.FailNextBuild(1)
	if _, err := BuildBLAS(b, s, triangleInputs(t, b)); !errors.Is(err, errs.ErrBackendBuild) {
		t.Fatalf("expected ErrBackendBuild, got %v", err)
	}
	// the failed build leaves only its own input buffers behind
	if got := b.Stats().LiveBuffers; got != before+2 {
		t.Fatalf("failed build leaked buffers: %d live, expected %d", got, before+2)
	}

	blas.Destroy(b)
	if blas.Accel != 0 || b.Stats().LiveAccels != 0 {
		t.Fatal("BLAS not released")
	}
}

func TestEmptyRebuild(t *testing.T) {
	b, s, _ := setup(t)
	tl := NewTLAS(b)

	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	if tl.Handle() != 0 || tl.State() != StateEmpty {
		t.Fatalf("expected empty TLAS, got handle %d state %s", tl.Handle(), tl.State())
	}
	if b.Stats().TLASBuilds != 0 {
		t.Fatal("empty rebuild reached the backend")
	}
}

func TestRebuildStates(t *testing.T) {
	b, s, blas := setup(t)
	tl := NewTLAS(b)

	for i := range 3 {
		idx, err := tl.AddInstance(instanceAt(blas, uint32(i), float32(i*4)))
		if err != nil || idx != i {
			t.Fatalf("add %d: index %d err %v", i, idx, err)
		}
	}
	if tl.State() != StateNeedsRebuild {
		t.Fatalf("expected needs-rebuild, got %s", tl.State())
	}
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	first := tl.Handle()
	if first == 0 || tl.State() != StateHasGeometry {
		t.Fatalf("expected built TLAS, got handle %d state %s", first, tl.State())
	}
	if hit, ok := b.Trace(first, mgl32.Vec3{8, 0, -5}, mgl32.Vec3{0, 0, 1}, 100); !ok || hit.InstanceID != 2 {
		t.Fatalf("expected to hit instance 2, got %+v (hit=%v)", hit, ok)
	}

	if err := tl.UpdateTransform(2, common.RowMajor3x4(mgl32.Translate3D(50, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if tl.State() != StateNeedsRebuild {
		t.Fatal("transform update did not mark the TLAS dirty")
	}
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	if tl.Handle() == first {
		t.Fatal("rebuild kept the old handle")
	}
	if _, ok := b.Trace(tl.Handle(), mgl32.Vec3{8, 0, -5}, mgl32.Vec3{0, 0, 1}, 100); ok {
		t.Fatal("moved instance still hit at its old position")
	}
	if m := tl.Metrics(); m.Rebuilds != 2 || m.LastCount != 3 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestRebuildFailureKeepsHandle(t *testing.T) {
	b, s, blas := setup(t)
	tl := NewTLAS(b)
	_, _ = tl.AddInstance(instanceAt(blas, 1, 0))
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	good := tl.Handle()
	capacity := tl.Capacity()

	_, _ = tl.AddInstance(instanceAt(blas, 2, 4))
	b.FailNextBuild(1)
	if err := tl.Rebuild(s); !errors.Is(err, errs.ErrBackendBuild) {
		t.Fatalf("expected ErrBackendBuild, got %v", err)
	}
	if tl.Handle() != good {
		t.Fatalf("handle changed after failure: %d != %d", tl.Handle(), good)
	}
	if tl.State() != StateNeedsRebuild {
		t.Fatalf("expected needs-rebuild after failure, got %s", tl.State())
	}
	if tl.Capacity() != capacity {
		t.Fatalf("failed rebuild replaced buffers: %+v != %+v", tl.Capacity(), capacity)
	}
	if _, ok := b.Trace(good, mgl32.Vec3{0, 0, -5}, mgl32.Vec3{0, 0, 1}, 100); !ok {
		t.Fatal("previous handle no longer traceable")
	}
	if m := tl.Metrics(); m.Failures != 1 {
		t.Fatalf("expected 1 failure, got %+v", m)
	}

	if err := tl.Rebuild(s); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if tl.Handle() == good || tl.State() != StateHasGeometry {
		t.Fatal("retry did not produce a new handle")
	}
}

func TestGrowthFailureLeavesLiveBuffers(t *testing.T) {
	b, s, blas := setup(t)
	tl := NewTLAS(b, WithAlignment(1))
	_, _ = tl.AddInstance(instanceAt(blas, 1, 0))
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	good := tl.Handle()
	live := b.Stats().LiveBuffers

	for i := range 64 {
		_, _ = tl.AddInstance(instanceAt(blas, uint32(i+2), float32(i)))
	}
	b.FailBuffers(true)
	if err := tl.Rebuild(s); !errors.Is(err, errs.ErrBackendBuild) {
		t.Fatalf("expected ErrBackendBuild, got %v", err)
	}
	b.FailBuffers(false)
	if tl.Handle() != good || b.Stats().LiveBuffers != live {
		t.Fatalf("growth failure changed live state: handle %d, %d buffers", tl.Handle(), b.Stats().LiveBuffers)
	}
}

func TestCapacityIsGrowOnly(t *testing.T) {
	b, s, blas := setup(t)
	tl := NewTLAS(b)

	for i := range 100 {
		_, _ = tl.AddInstance(instanceAt(blas, uint32(i), float32(i)))
	}
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	peak := tl.Capacity()
	if peak.Instances < 100*backend.InstanceSize {
		t.Fatalf("instance buffer too small: %d", peak.Instances)
	}

	for tl.InstanceCount() > 10 {
		if _, err := tl.RemoveInstance(0); err != nil {
			t.Fatal(err)
		}
	}
	if err := tl.Rebuild(s); err != nil {
		t.Fatal(err)
	}
	if tl.Capacity() != peak {
		t.Fatalf("capacity shrank: %+v -> %+v", peak, tl.Capacity())
	}
}

func TestRemoveInstanceSwaps(t *testing.T) {
	b, _, blas := setup(t)
	tl := NewTLAS(b)
	for i := range 4 {
		_, _ = tl.AddInstance(instanceAt(blas, uint32(10+i), 0))
	}

	specs := []struct {
		index  int
		moved  int
		wantID uint32
	}{
		{1, 3, 13},
		{2, -1, 0},
		{0, 1, 13},
	}
	for index, spec := range specs {
		moved, err := tl.RemoveInstance(spec.index)
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if moved != spec.moved {
			t.Errorf("[spec %d] expected moved=%d; got %d", index, spec.moved, moved)
		}
		if moved >= 0 {
			inst, _ := tl.Instance(spec.index)
			if inst.InstanceID != spec.wantID {
				t.Errorf("[spec %d] expected instance %d at %d; got %d", index, spec.wantID, spec.index, inst.InstanceID)
			}
		}
	}
	if _, err := tl.RemoveInstance(5); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestDestroy(t *testing.T) {
	b, s, blas := setup(t)
	tl := NewTLAS(b)
	_, _ = tl.AddInstance(instanceAt(blas, 1, 0))
	_ = tl.Rebuild(s)
	tl.Destroy()
	if tl.Handle() != 0 || tl.InstanceCount() != 0 || tl.Capacity() != (Capacity{}) {
		t.Fatal("Destroy left state behind")
	}
	// only the BLAS accel remains
	if got := b.Stats().LiveAccels; got != 1 {
		t.Fatalf("expected 1 live accel, got %d", got)
	}
}
