// Package accel builds bottom-level acceleration structures and manages the scene's single
// top-level structure: its instance list, grow-only backing memory and rebuild state.
package accel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
)

var logger = log.New("accel")

// ErrIndexOutOfRange is returned for instance indices outside [0, InstanceCount).
var ErrIndexOutOfRange = fmt.Errorf("instance index out of range: %w", errs.ErrInvalidInput)

// State is the TLAS lifecycle state.
type State int

const (
	// StateEmpty means no instances and a zero handle.
	StateEmpty State = iota
	// StateHasGeometry means the handle reflects the current instance list.
	StateHasGeometry
	// StateNeedsRebuild means instances changed since the last successful build.
	StateNeedsRebuild
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHasGeometry:
		return "has-geometry"
	case StateNeedsRebuild:
		return "needs-rebuild"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Capacity reports the current size of the grow-only backing buffers in bytes.
type Capacity struct {
	Instances uint64
	Scratch   uint64
	Output    uint64
}

// Metrics summarises rebuild activity.
type Metrics struct {
	Rebuilds     int
	Failures     int
	LastDuration time.Duration
	LastCount    int
}

// tlasOptions allow refits even though every rebuild is a full build today.
var tlasOptions = backend.BuildOptions{PreferFastBuild: true, AllowUpdate: true}

type tlas struct {
	mu *sync.RWMutex
	b  backend.Backend

	label     string
	alignment uint64

	instances []backend.Instance
	state     State
	handle    backend.Traversable

	accel     backend.Accel
	instBuf   backend.Buffer
	scratch   backend.Buffer
	output    backend.Buffer
	instSize  uint64
	scratchSz uint64
	outputSz  uint64

	metrics Metrics
}

// TLAS manages the top-level acceleration structure over scene instances.
// Thread-safe for concurrent access.
type TLAS interface {
	// AddInstance appends an instance and marks the structure for rebuild.
	//
	// Parameters:
	//   - inst: the instance to add
	//
	// Returns:
	//   - int: the instance index
	//   - error: always nil today, reserved for capacity limits
	AddInstance(inst backend.Instance) (int, error)

	// RemoveInstance removes the instance at index by moving the last instance into its place.
	//
	// Parameters:
	//   - index: the instance to remove
	//
	// Returns:
	//   - int: the previous index of the instance now stored at index, or -1 if nothing moved
	//   - error: ErrIndexOutOfRange
	RemoveInstance(index int) (int, error)

	// UpdateTransform replaces an instance's 3x4 row-major transform and marks the structure for rebuild.
	UpdateTransform(index int, transform [12]float32) error

	// Instance returns a copy of the instance at index.
	Instance(index int) (backend.Instance, error)

	// MarkDirty forces the next Rebuild to rebuild.
	MarkDirty()

	// Rebuild builds the structure over the current instances on stream s. With no instances the
	// handle becomes 0. On failure the previous handle, its buffers and the NeedsRebuild state are kept.
	//
	// Parameters:
	//   - s: the stream to build on
	//
	// Returns:
	//   - error: a failure wrapping errs.ErrBackendBuild
	Rebuild(s backend.Stream) error

	// Handle returns the traversable of the last successful build, or 0.
	Handle() backend.Traversable

	// State returns the lifecycle state.
	State() State

	// InstanceCount returns the number of instances.
	InstanceCount() int

	// Capacity returns the current backing buffer sizes.
	Capacity() Capacity

	// Metrics returns rebuild statistics.
	Metrics() Metrics

	// Destroy releases every backing resource. The handle becomes 0.
	Destroy()
}

var _ TLAS = &tlas{}

// NewTLAS creates an empty TLAS manager. Panics if b is nil.
//
// Parameters:
//   - b: the backend that owns the device resources
//   - options: functional options applied after the defaults
//
// Returns:
//   - TLAS: the new manager
func NewTLAS(b backend.Backend, options ...TLASBuilderOption) TLAS {
	if b == nil {
		panic("accel: nil backend")
	}
	t := &tlas{
		mu:        &sync.RWMutex{},
		b:         b,
		label:     "tlas",
		alignment: 256,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *tlas) AddInstance(inst backend.Instance) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.instances = append(t.instances, inst)
	t.state = StateNeedsRebuild
	return len(t.instances) - 1, nil
}

func (t *tlas) RemoveInstance(index int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.instances) {
		return -1, fmt.Errorf("remove %d of %d: %w", index, len(t.instances), ErrIndexOutOfRange)
	}
	last := len(t.instances) - 1
	moved := -1
	if index != last {
		t.instances[index] = t.instances[last]
		moved = last
	}
	t.instances = t.instances[:last]
	t.state = StateNeedsRebuild
	return moved, nil
}

func (t *tlas) UpdateTransform(index int, transform [12]float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.instances) {
		return fmt.Errorf("update %d of %d: %w", index, len(t.instances), ErrIndexOutOfRange)
	}
	t.instances[index].Transform = transform
	t.state = StateNeedsRebuild
	return nil
}

func (t *tlas) Instance(index int) (backend.Instance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.instances) {
		return backend.Instance{}, fmt.Errorf("instance %d of %d: %w", index, len(t.instances), ErrIndexOutOfRange)
	}
	return t.instances[index], nil
}

func (t *tlas) MarkDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateNeedsRebuild
}

func (t *tlas) Rebuild(s backend.Stream) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	if len(t.instances) == 0 {
		t.handle = 0
		t.state = StateEmpty
		t.record(start)
		return nil
	}

	if err := t.rebuild(s); err != nil {
		t.metrics.Failures++
		logger.Warningf("%s rebuild over %d instances failed: %v", t.label, len(t.instances), err)
		return errors.Join(errs.ErrBackendBuild, err)
	}
	t.state = StateHasGeometry
	t.record(start)
	logger.Debugf("%s rebuilt: %d instances in %s", t.label, len(t.instances), t.metrics.LastDuration)
	return nil
}

func (t *tlas) record(start time.Time) {
	t.metrics.Rebuilds++
	t.metrics.LastDuration = time.Since(start)
	t.metrics.LastCount = len(t.instances)
}

// staged holds buffers allocated for a rebuild that have not replaced the live ones yet.
type staged struct {
	buf  backend.Buffer
	size uint64
}

// grow returns a buffer of at least required bytes: the current one when it is large enough,
// or a newly allocated one.
func (t *tlas) grow(label string, current backend.Buffer, currentSize, required uint64) (staged, error) {
	size := common.GrowSize(currentSize, required, t.alignment)
	if current != 0 && size == currentSize {
		return staged{buf: current, size: currentSize}, nil
	}
	buf, err := t.b.CreateBuffer(t.label+" "+label, size)
	if err != nil {
		return staged{}, fmt.Errorf("allocate %s (%d bytes): %w", label, size, err)
	}
	return staged{buf: buf, size: size}, nil
}

func (t *tlas) rebuild(s backend.Stream) error {
	if t.accel == 0 {
		a, err := t.b.CreateAccel(backend.AccelTop)
		if err != nil {
			return fmt.Errorf("create accel: %w", err)
		}
		t.accel = a
	}

	count := uint32(len(t.instances))
	var created []backend.Buffer
	discard := func() {
		for _, buf := range created {
			t.b.DestroyBuffer(buf)
		}
	}

	inst, err := t.grow("instances", t.instBuf, t.instSize, uint64(count)*backend.InstanceSize)
	if err != nil {
		return err
	}
	if inst.buf != t.instBuf {
		created = append(created, inst.buf)
	}

	in := backend.BuildInputs{
		Kind:      backend.AccelTop,
		Instances: backend.InstanceInput{Buffer: inst.buf, Count: count},
	}
	req, err := t.b.AccelMemoryRequirements(t.accel, in, tlasOptions)
	if err != nil {
		discard()
		return fmt.Errorf("memory requirements: %w", err)
	}

	scratch, err := t.grow("scratch", t.scratch, t.scratchSz, max(req.ScratchSize, 1))
	if err != nil {
		discard()
		return err
	}
	if scratch.buf != t.scratch {
		created = append(created, scratch.buf)
	}
	output, err := t.grow("output", t.output, t.outputSz, req.OutputSize)
	if err != nil {
		discard()
		return err
	}
	if output.buf != t.output {
		created = append(created, output.buf)
	}

	view, err := t.b.MapBuffer(inst.buf)
	if err != nil {
		discard()
		return fmt.Errorf("map instances: %w", err)
	}
	for i := range t.instances {
		t.instances[i].MarshalTo(view[i*backend.InstanceSize:])
	}
	if err := t.b.UnmapBuffer(inst.buf); err != nil {
		discard()
		return fmt.Errorf("unmap instances: %w", err)
	}

	if err := t.b.BuildAccel(s, t.accel, in, tlasOptions, scratch.buf, output.buf); err != nil {
		discard()
		return fmt.Errorf("build: %w", err)
	}
	handle, err := t.b.Traversable(t.accel)
	if err != nil {
		discard()
		return fmt.Errorf("handle: %w", err)
	}

	t.swap(&t.instBuf, &t.instSize, inst)
	t.swap(&t.scratch, &t.scratchSz, scratch)
	t.swap(&t.output, &t.outputSz, output)
	t.handle = handle
	return nil
}

// swap replaces a live buffer with a staged one, releasing the old allocation once in-flight work is done.
func (t *tlas) swap(live *backend.Buffer, liveSize *uint64, next staged) {
	if *live == next.buf {
		return
	}
	if *live != 0 {
		if err := t.b.WaitAll(); err != nil {
			logger.Warningf("%s: waiting before releasing a superseded buffer: %v", t.label, err)
		}
		t.b.DestroyBuffer(*live)
	}
	*live = next.buf
	*liveSize = next.size
}

func (t *tlas) Handle() backend.Traversable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handle
}

func (t *tlas) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *tlas) InstanceCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.instances)
}

func (t *tlas) Capacity() Capacity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Capacity{Instances: t.instSize, Scratch: t.scratchSz, Output: t.outputSz}
}

func (t *tlas) Metrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

func (t *tlas) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, buf := range []backend.Buffer{t.instBuf, t.scratch, t.output} {
		if buf != 0 {
			t.b.DestroyBuffer(buf)
		}
	}
	if t.accel != 0 {
		t.b.DestroyAccel(t.accel)
	}
	t.instBuf, t.scratch, t.output, t.accel = 0, 0, 0, 0
	t.instSize, t.scratchSz, t.outputSz = 0, 0, 0
	t.instances = nil
	t.handle = 0
	t.state = StateEmpty
}
