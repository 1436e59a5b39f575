package software

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

// scratchPerPrimitive is the scratch the builder reserves for each primitive's box and index.
const scratchPerPrimitive = 32

type accel struct {
	kind   backend.AccelKind
	handle backend.Traversable
	tree   *bvh.Tree
	bounds common.AABB

	// bottom level
	triangles [][3]mgl32.Vec3

	// top level
	instances []backend.Instance
	inverses  []mgl32.Mat4
}

func (s *software) CreateAccel(kind backend.AccelKind) (backend.Accel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}
	id := backend.Accel(s.id())
	s.accels[id] = &accel{kind: kind, bounds: common.EmptyAABB()}
	return id, nil
}

func (s *software) DestroyAccel(id backend.Accel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accels[id]; ok {
		delete(s.handles, a.handle)
		delete(s.accels, id)
	}
}

func (s *software) accel(id backend.Accel) (*accel, error) {
	a, ok := s.accels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownAccel, id)
	}
	return a, nil
}

func requirements(in backend.BuildInputs) (backend.MemoryRequirements, error) {
	n := in.Primitives()
	if n == 0 {
		return backend.MemoryRequirements{}, fmt.Errorf("%w: %s with no primitives", backend.ErrInvalidBuild, in.Kind)
	}
	payload := uint64(n) * 36
	if in.Kind == backend.AccelTop {
		payload = uint64(n) * backend.InstanceSize
	}
	return backend.MemoryRequirements{
		OutputSize:  common.AlignUp(bvh.SerializedSize(n)+payload, 256),
		ScratchSize: common.AlignUp(uint64(n)*scratchPerPrimitive, 256),
	}, nil
}

func (s *software) AccelMemoryRequirements(id backend.Accel, in backend.BuildInputs, _ backend.BuildOptions) (backend.MemoryRequirements, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.accel(id)
	if err != nil {
		return backend.MemoryRequirements{}, err
	}
	if a.kind != in.Kind {
		return backend.MemoryRequirements{}, fmt.Errorf("%w: %s inputs for a %s", backend.ErrInvalidBuild, in.Kind, a.kind)
	}
	return requirements(in)
}

func (s *software) BuildAccel(sid backend.Stream, id backend.Accel, in backend.BuildInputs, _ backend.BuildOptions, scratch, output backend.Buffer) error {
	if s.failBuilds.Load() > 0 {
		s.failBuilds.Add(-1)
		return fmt.Errorf("build %s: %w", in.Kind, ErrInjected)
	}

	s.mu.Lock()
	st, out, built, err := s.buildLocked(sid, id, in, scratch, output)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	payload := built.tree.Marshal()
	st.submit(func() error {
		out.mu.Lock()
		defer out.mu.Unlock()
		copy(out.data, payload)
		return nil
	})

	if in.Kind == backend.AccelTop {
		s.tlasBuilds.Add(1)
	} else {
		s.blasBuilds.Add(1)
	}
	return nil
}

// buildLocked validates the build and swaps in the new structure. The caller holds s.mu.
func (s *software) buildLocked(sid backend.Stream, id backend.Accel, in backend.BuildInputs, scratch, output backend.Buffer) (*stream, *buffer, *accel, error) {
	st, err := s.stream(sid)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := s.accel(id)
	if err != nil {
		return nil, nil, nil, err
	}
	if a.kind != in.Kind {
		return nil, nil, nil, fmt.Errorf("%w: %s inputs for a %s", backend.ErrInvalidBuild, in.Kind, a.kind)
	}
	req, err := requirements(in)
	if err != nil {
		return nil, nil, nil, err
	}
	sb, err := s.buffer(scratch)
	if err != nil {
		return nil, nil, nil, err
	}
	ob, err := s.buffer(output)
	if err != nil {
		return nil, nil, nil, err
	}
	if uint64(len(sb.data)) < req.ScratchSize || uint64(len(ob.data)) < req.OutputSize {
		return nil, nil, nil, fmt.Errorf("%w: scratch %d/%d output %d/%d", backend.ErrBufferTooSmall,
			len(sb.data), req.ScratchSize, len(ob.data), req.OutputSize)
	}

	next := &accel{kind: a.kind}
	if in.Kind == backend.AccelTop {
		err = s.buildTop(next, in.Instances)
	} else {
		err = s.buildBottom(next, in.Triangles)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	s.nextHandle++
	next.handle = backend.Traversable(s.nextHandle)
	delete(s.handles, a.handle)
	*a = *next
	s.handles[a.handle] = id
	return st, ob, a, nil
}

func (s *software) buildBottom(a *accel, inputs []backend.TriangleInput) error {
	for _, t := range inputs {
		vb, err := s.buffer(t.VertexBuffer)
		if err != nil {
			return err
		}
		ib, err := s.buffer(t.IndexBuffer)
		if err != nil {
			return err
		}
		a.triangles, err = backend.ReadTriangles(a.triangles, t, vb.data, ib.data)
		if err != nil {
			return err
		}
	}

	items := make([]bvh.Item, len(a.triangles))
	for i, tri := range a.triangles {
		items[i] = bvh.Item{
			Bounds: common.EmptyAABB().Extend(tri[0]).Extend(tri[1]).Extend(tri[2]),
			Index:  i,
		}
	}
	a.tree = bvh.Build(items)
	a.bounds = a.tree.Bounds()
	return nil
}

func (s *software) buildTop(a *accel, input backend.InstanceInput) error {
	ib, err := s.buffer(input.Buffer)
	if err != nil {
		return err
	}
	if uint64(len(ib.data)) < uint64(input.Count)*backend.InstanceSize {
		return fmt.Errorf("%w: instance buffer holds %d bytes for %d instances",
			backend.ErrInvalidBuild, len(ib.data), input.Count)
	}

	a.instances = make([]backend.Instance, input.Count)
	a.inverses = make([]mgl32.Mat4, input.Count)
	items := make([]bvh.Item, input.Count)
	for i := range a.instances {
		inst := backend.UnmarshalInstance(ib.data[i*backend.InstanceSize:])
		blasID, ok := s.handles[inst.Traversable]
		if !ok {
			return fmt.Errorf("%w: instance %d references %d", backend.ErrUnknownTraversal, i, inst.Traversable)
		}
		blas := s.accels[blasID]
		if blas.kind != backend.AccelBottom {
			return fmt.Errorf("%w: instance %d references a %s", backend.ErrInvalidBuild, i, blas.kind)
		}

		m := common.FromRowMajor3x4(inst.Transform)
		a.instances[i] = inst
		a.inverses[i] = m.Inv()
		items[i] = bvh.Item{Bounds: blas.bounds.Transform(m), Index: i}
	}
	a.tree = bvh.Build(items)
	a.bounds = a.tree.Bounds()
	return nil
}

func (s *software) Traversable(id backend.Accel) (backend.Traversable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.accel(id)
	if err != nil {
		return 0, err
	}
	if a.handle == 0 {
		return 0, fmt.Errorf("%w: %d", backend.ErrNotBuilt, id)
	}
	return a.handle, nil
}
