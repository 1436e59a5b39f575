// Package webgpu implements backend.Backend on a WebGPU device. Acceleration structures are built
// on the host and uploaded as word blobs that the WGSL traversal library in TraversalSource walks.
// All streams share the device queue, so waiting on one stream drains the queue.
package webgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/cogentcore/webgpu/wgpu"
)

var logger = log.New("webgpu")

const bufferUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

type buffer struct {
	label  string
	size   uint64
	gpu    *wgpu.Buffer
	shadow []byte
}

type stream struct {
	pending int
}

type wgpuBackend struct {
	mu *sync.Mutex

	label         string
	forceFallback bool
	kernelSource  string
	entryPoint    string

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	pipeline  *wgpu.ComputePipeline
	layout    *wgpu.BindGroupLayout
	image     *wgpu.Buffer
	imageSize uint64
	empty     *wgpu.Buffer

	streams map[backend.Stream]*stream
	buffers map[backend.Buffer]*buffer
	accels  map[backend.Accel]*accel
	handles map[backend.Traversable]backend.Accel

	nextID     uint64
	nextHandle uint64
	closed     bool
}

var _ backend.Backend = &wgpuBackend{}

// New requests an adapter and device and compiles the kernel, if one was given.
//
// Parameters:
//   - options: functional options applied after the defaults
//
// Returns:
//   - backend.Backend: the new backend
//   - error: a failure wrapping errs.ErrBackendBuild
func New(options ...BuilderOption) (b backend.Backend, err error) {
	w := &wgpuBackend{
		mu:      &sync.Mutex{},
		streams: make(map[backend.Stream]*stream),
		buffers: make(map[backend.Buffer]*buffer),
		accels:  make(map[backend.Accel]*accel),
		handles: make(map[backend.Traversable]backend.Accel),
	}
	for _, opt := range options {
		opt(w)
	}
	w.label = common.Coalesce(w.label, "oxy-trace device")

	defer func() {
		if r := recover(); r != nil {
			err = errs.Recovered(r)
		}
		if err != nil {
			w.release()
			b, err = nil, errors.Join(errs.ErrBackendBuild, err)
		}
	}()

	w.instance = wgpu.CreateInstance(nil)
	w.adapter, err = w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: w.forceFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}

	w.device, err = w.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: w.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.queue = w.device.GetQueue()

	w.empty, err = w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "empty scene",
		Size:  headerWords * 4,
		Usage: bufferUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("empty scene buffer: %w", err)
	}

	if w.kernelSource != "" {
		if err = w.compileKernel(); err != nil {
			return nil, fmt.Errorf("kernel %q: %w", w.entryPoint, err)
		}
	}
	logger.Infof("webgpu device ready (fallback adapter: %v, kernel: %v)", w.forceFallback, w.pipeline != nil)
	return w, nil
}

func (w *wgpuBackend) compileKernel() error {
	module, err := w.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "trace kernel",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: w.kernelSource,
		},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	w.pipeline, err = w.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "trace kernel",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: w.entryPoint,
		},
	})
	if err != nil {
		return err
	}
	w.layout = w.pipeline.GetBindGroupLayout(0)
	return nil
}

func (w *wgpuBackend) Name() string {
	return "webgpu"
}

func (w *wgpuBackend) id() uint64 {
	w.nextID++
	return w.nextID
}

func (w *wgpuBackend) CreateStream() (backend.Stream, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, backend.ErrClosed
	}
	id := backend.Stream(w.id())
	w.streams[id] = &stream{}
	return id, nil
}

func (w *wgpuBackend) DestroyStream(id backend.Stream) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.streams[id]; !ok {
		return
	}
	w.drainLocked()
	delete(w.streams, id)
}

func (w *wgpuBackend) stream(id backend.Stream) (*stream, error) {
	st, ok := w.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownStream, id)
	}
	return st, nil
}

// drainLocked blocks until the queue is empty. The caller holds w.mu.
func (w *wgpuBackend) drainLocked() {
	busy := false
	for _, st := range w.streams {
		busy = busy || st.pending > 0
		st.pending = 0
	}
	if busy && w.device != nil {
		w.device.Poll(true, nil)
	}
}

func (w *wgpuBackend) StreamDone(id backend.Stream) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.streams[id]
	return !ok || st.pending == 0
}

func (w *wgpuBackend) WaitStream(id backend.Stream) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.stream(id); err != nil {
		return err
	}
	w.drainLocked()
	return nil
}

func (w *wgpuBackend) WaitAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drainLocked()
	return nil
}

func (w *wgpuBackend) CreateBuffer(label string, size uint64) (backend.Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, backend.ErrClosed
	}

	alloc := common.AlignUp(max(size, 16), 4)
	gpu, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  alloc,
		Usage: bufferUsage,
	})
	if err != nil {
		return 0, fmt.Errorf("create buffer %q: %w", label, err)
	}
	id := backend.Buffer(w.id())
	w.buffers[id] = &buffer{label: label, size: size, gpu: gpu, shadow: make([]byte, alloc)}
	logger.Debugf("buffer %d %q: %d bytes", id, label, size)
	return id, nil
}

func (w *wgpuBackend) DestroyBuffer(id backend.Buffer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[id]; ok {
		b.gpu.Release()
		delete(w.buffers, id)
	}
}

func (w *wgpuBackend) buffer(id backend.Buffer) (*buffer, error) {
	b, ok := w.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownBuffer, id)
	}
	return b, nil
}

// MapBuffer returns the host copy of the buffer. Device writes made by kernels are not read back.
func (w *wgpuBackend) MapBuffer(id backend.Buffer) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.buffer(id)
	if err != nil {
		return nil, err
	}
	return b.shadow[:b.size], nil
}

func (w *wgpuBackend) UnmapBuffer(id backend.Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.buffer(id)
	if err != nil {
		return err
	}
	w.queue.WriteBuffer(b.gpu, 0, b.shadow)
	return nil
}

func (w *wgpuBackend) BufferSize(id backend.Buffer) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[id]; ok {
		return b.size
	}
	return 0
}

func (w *wgpuBackend) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.drainLocked()
	w.release()
	w.closed = true
	return nil
}

// release frees every device object. The caller holds w.mu or owns w exclusively.
func (w *wgpuBackend) release() {
	for id, b := range w.buffers {
		b.gpu.Release()
		delete(w.buffers, id)
	}
	clear(w.streams)
	clear(w.accels)
	clear(w.handles)

	if w.image != nil {
		w.image.Release()
		w.image = nil
	}
	if w.empty != nil {
		w.empty.Release()
		w.empty = nil
	}
	if w.layout != nil {
		w.layout.Release()
		w.layout = nil
	}
	if w.pipeline != nil {
		w.pipeline.Release()
		w.pipeline = nil
	}
	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
}

// traversableAt reads the traversable handle from the first word pair of a launch parameter block.
func traversableAt(params []byte) backend.Traversable {
	if len(params) < 8 {
		return 0
	}
	return backend.Traversable(binary.LittleEndian.Uint64(params))
}
