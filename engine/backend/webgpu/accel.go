package webgpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

// scratchPerPrimitive matches the host backend so scenes size scratch the same on both.
const scratchPerPrimitive = 32

type accel struct {
	kind   backend.AccelKind
	handle backend.Traversable
	output backend.Buffer
	blob   []byte
	bounds common.AABB
}

func (w *wgpuBackend) CreateAccel(kind backend.AccelKind) (backend.Accel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, backend.ErrClosed
	}
	id := backend.Accel(w.id())
	w.accels[id] = &accel{kind: kind, bounds: common.EmptyAABB()}
	return id, nil
}

func (w *wgpuBackend) DestroyAccel(id backend.Accel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.accels[id]; ok {
		delete(w.handles, a.handle)
		delete(w.accels, id)
	}
}

func (w *wgpuBackend) accel(id backend.Accel) (*accel, error) {
	a, ok := w.accels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownAccel, id)
	}
	return a, nil
}

// requirementsLocked sizes a build. A TLAS blob embeds the BLAS blobs its instances reference,
// so its size depends on the current contents of the instance buffer. The caller holds w.mu.
func (w *wgpuBackend) requirementsLocked(in backend.BuildInputs) (backend.MemoryRequirements, error) {
	n := in.Primitives()
	if n == 0 {
		return backend.MemoryRequirements{}, fmt.Errorf("%w: %s with no primitives", backend.ErrInvalidBuild, in.Kind)
	}

	out := blasBlobSize(n)
	if in.Kind == backend.AccelTop {
		instances, err := w.readInstancesLocked(in.Instances)
		if err != nil {
			return backend.MemoryRequirements{}, err
		}
		out = tlasBlobSize(n)
		seen := make(map[backend.Traversable]bool, len(instances))
		for _, inst := range instances {
			if !seen[inst.Traversable] {
				seen[inst.Traversable] = true
				blas, err := w.blasLocked(inst.Traversable)
				if err != nil {
					return backend.MemoryRequirements{}, err
				}
				out += uint64(len(blas.blob))
			}
		}
	}
	return backend.MemoryRequirements{
		OutputSize:  common.AlignUp(out, 256),
		ScratchSize: common.AlignUp(uint64(n)*scratchPerPrimitive, 256),
	}, nil
}

func (w *wgpuBackend) AccelMemoryRequirements(id backend.Accel, in backend.BuildInputs, _ backend.BuildOptions) (backend.MemoryRequirements, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, err := w.accel(id)
	if err != nil {
		return backend.MemoryRequirements{}, err
	}
	if a.kind != in.Kind {
		return backend.MemoryRequirements{}, fmt.Errorf("%w: %s inputs for a %s", backend.ErrInvalidBuild, in.Kind, a.kind)
	}
	return w.requirementsLocked(in)
}

func (w *wgpuBackend) BuildAccel(sid backend.Stream, id backend.Accel, in backend.BuildInputs, _ backend.BuildOptions, scratch, output backend.Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.stream(sid)
	if err != nil {
		return err
	}
	a, err := w.accel(id)
	if err != nil {
		return err
	}
	if a.kind != in.Kind {
		return fmt.Errorf("%w: %s inputs for a %s", backend.ErrInvalidBuild, in.Kind, a.kind)
	}
	req, err := w.requirementsLocked(in)
	if err != nil {
		return err
	}
	sb, err := w.buffer(scratch)
	if err != nil {
		return err
	}
	ob, err := w.buffer(output)
	if err != nil {
		return err
	}
	if sb.size < req.ScratchSize || ob.size < req.OutputSize {
		return fmt.Errorf("%w: scratch %d/%d output %d/%d", backend.ErrBufferTooSmall,
			sb.size, req.ScratchSize, ob.size, req.OutputSize)
	}

	next := &accel{kind: a.kind, output: output}
	if in.Kind == backend.AccelTop {
		err = w.buildTopLocked(next, in.Instances)
	} else {
		err = w.buildBottomLocked(next, in.Triangles)
	}
	if err != nil {
		return err
	}

	copy(ob.shadow, next.blob)
	w.queue.WriteBuffer(ob.gpu, 0, next.blob)
	st.pending++

	w.nextHandle++
	next.handle = backend.Traversable(w.nextHandle)
	delete(w.handles, a.handle)
	*a = *next
	w.handles[a.handle] = id
	logger.Debugf("%s %d built: %d bytes, handle %d", a.kind, id, len(a.blob), a.handle)
	return nil
}

func (w *wgpuBackend) buildBottomLocked(a *accel, inputs []backend.TriangleInput) error {
	var triangles [][3]mgl32.Vec3
	for _, t := range inputs {
		vb, err := w.buffer(t.VertexBuffer)
		if err != nil {
			return err
		}
		ib, err := w.buffer(t.IndexBuffer)
		if err != nil {
			return err
		}
		triangles, err = backend.ReadTriangles(triangles, t, vb.shadow[:vb.size], ib.shadow[:ib.size])
		if err != nil {
			return err
		}
	}

	items := make([]bvh.Item, len(triangles))
	for i, tri := range triangles {
		items[i] = bvh.Item{
			Bounds: common.EmptyAABB().Extend(tri[0]).Extend(tri[1]).Extend(tri[2]),
			Index:  i,
		}
	}
	tree := bvh.Build(items)
	a.blob = encodeBLAS(tree, triangles)
	a.bounds = tree.Bounds()
	return nil
}

func (w *wgpuBackend) readInstancesLocked(input backend.InstanceInput) ([]backend.Instance, error) {
	ib, err := w.buffer(input.Buffer)
	if err != nil {
		return nil, err
	}
	if ib.size < uint64(input.Count)*backend.InstanceSize {
		return nil, fmt.Errorf("%w: instance buffer holds %d bytes for %d instances",
			backend.ErrInvalidBuild, ib.size, input.Count)
	}
	out := make([]backend.Instance, input.Count)
	for i := range out {
		out[i] = backend.UnmarshalInstance(ib.shadow[i*backend.InstanceSize:])
	}
	return out, nil
}

func (w *wgpuBackend) blasLocked(handle backend.Traversable) (*accel, error) {
	id, ok := w.handles[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownTraversal, handle)
	}
	blas := w.accels[id]
	if blas.kind != backend.AccelBottom {
		return nil, fmt.Errorf("%w: handle %d is a %s", backend.ErrInvalidBuild, handle, blas.kind)
	}
	return blas, nil
}

func (w *wgpuBackend) buildTopLocked(a *accel, input backend.InstanceInput) error {
	instances, err := w.readInstancesLocked(input)
	if err != nil {
		return err
	}

	placed := make([]placedInstance, len(instances))
	items := make([]bvh.Item, len(instances))
	for i, inst := range instances {
		blas, err := w.blasLocked(inst.Traversable)
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		m := common.FromRowMajor3x4(inst.Transform)
		placed[i] = placedInstance{
			inverse:    m.Inv(),
			instanceID: inst.InstanceID,
			mask:       inst.Mask,
			blas:       inst.Traversable,
			blob:       blas.blob,
		}
		items[i] = bvh.Item{Bounds: blas.bounds.Transform(m), Index: i}
	}
	tree := bvh.Build(items)
	a.blob = encodeTLAS(tree, placed)
	a.bounds = tree.Bounds()
	return nil
}

func (w *wgpuBackend) Traversable(id backend.Accel) (backend.Traversable, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, err := w.accel(id)
	if err != nil {
		return 0, err
	}
	if a.handle == 0 {
		return 0, fmt.Errorf("%w: %d", backend.ErrNotBuilt, id)
	}
	return a.handle, nil
}
