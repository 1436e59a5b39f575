// Package software implements backend.Backend on the host. Buffers are byte slices, acceleration
// structures are BVHs from engine/bvh, and each stream is a single-worker pool so submissions
// execute in order off the caller's goroutine.
package software

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
)

// ErrInjected is returned by operations failed on purpose through FailNextBuild or FailBuffers.
var ErrInjected = errors.New("software backend: injected failure")

var logger = log.New("software")

// Stats is a snapshot of the backend counters.
type Stats struct {
	BLASBuilds  int
	TLASBuilds  int
	Launches    int
	LiveBuffers int
	LiveAccels  int
	LiveStreams int
	BufferBytes uint64
}

// Backend is the host implementation of backend.Backend with test hooks.
type Backend interface {
	backend.Backend
	Tracer

	// FailNextBuild makes the next n calls to BuildAccel fail with ErrInjected.
	FailNextBuild(n int)

	// FailBuffers makes CreateBuffer fail with ErrInjected while fail is true.
	FailBuffers(fail bool)

	// Stats returns the current counters.
	Stats() Stats

	// Bounds returns the world-space box of a built structure, or the empty box for unknown handles.
	Bounds(handle backend.Traversable) common.AABB
}

type stream struct {
	pool    worker.DynamicWorkerPool
	wg      *sync.WaitGroup
	pending *atomic.Int64
	errMu   *sync.Mutex
	err     error
}

type buffer struct {
	label string
	mu    *sync.Mutex
	data  []byte
}

type software struct {
	mu *sync.RWMutex

	streams map[backend.Stream]*stream
	buffers map[backend.Buffer]*buffer
	accels  map[backend.Accel]*accel
	handles map[backend.Traversable]backend.Accel

	nextID     uint64
	nextHandle uint64
	queueDepth int
	kernel     KernelFunc
	closed     bool

	failBuilds  atomic.Int32
	failBuffers atomic.Bool

	blasBuilds atomic.Int64
	tlasBuilds atomic.Int64
	launches   atomic.Int64
}

var _ Backend = &software{}

// New creates a software backend.
//
// Parameters:
//   - options: functional options applied after the defaults
//
// Returns:
//   - Backend: the new backend
func New(options ...BuilderOption) Backend {
	s := &software{
		mu:         &sync.RWMutex{},
		streams:    make(map[backend.Stream]*stream),
		buffers:    make(map[backend.Buffer]*buffer),
		accels:     make(map[backend.Accel]*accel),
		handles:    make(map[backend.Traversable]backend.Accel),
		queueDepth: 64,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *software) Name() string {
	return "software"
}

func (s *software) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *software) CreateStream() (backend.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}

	id := backend.Stream(s.id())
	s.streams[id] = &stream{
		pool:    worker.NewDynamicWorkerPool(1, s.queueDepth, time.Second),
		wg:      &sync.WaitGroup{},
		pending: &atomic.Int64{},
		errMu:   &sync.Mutex{},
	}
	return id, nil
}

func (s *software) DestroyStream(id backend.Stream) {
	s.mu.Lock()
	st, ok := s.streams[id]
	delete(s.streams, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	st.wg.Wait()
	st.pool.Stop()
}

func (s *software) stream(id backend.Stream) (*stream, error) {
	st, ok := s.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownStream, id)
	}
	return st, nil
}

// submit enqueues fn on the stream. Callers must not hold s.mu for writing when fn needs it.
func (st *stream) submit(fn func() error) {
	st.wg.Add(1)
	st.pending.Add(1)
	st.pool.SubmitTask(worker.Task{
		Do: func() (any, error) {
			defer st.wg.Done()
			defer st.pending.Add(-1)
			err := fn()
			if err != nil {
				st.errMu.Lock()
				st.err = errors.Join(st.err, err)
				st.errMu.Unlock()
			}
			return nil, err
		},
	})
}

func (st *stream) wait() error {
	st.wg.Wait()
	st.errMu.Lock()
	defer st.errMu.Unlock()
	err := st.err
	st.err = nil
	return err
}

func (s *software) StreamDone(id backend.Stream) bool {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	return !ok || st.pending.Load() == 0
}

func (s *software) WaitStream(id backend.Stream) error {
	s.mu.RLock()
	st, err := s.stream(id)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return st.wait()
}

func (s *software) WaitAll() error {
	s.mu.RLock()
	streams := make([]*stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.RUnlock()

	var err error
	for _, st := range streams {
		err = errors.Join(err, st.wait())
	}
	return err
}

func (s *software) CreateBuffer(label string, size uint64) (backend.Buffer, error) {
	if s.failBuffers.Load() {
		return 0, fmt.Errorf("create buffer %q: %w", label, ErrInjected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, backend.ErrClosed
	}
	id := backend.Buffer(s.id())
	s.buffers[id] = &buffer{label: label, mu: &sync.Mutex{}, data: make([]byte, size)}
	logger.Debugf("buffer %d %q: %d bytes", id, label, size)
	return id, nil
}

func (s *software) DestroyBuffer(id backend.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, id)
}

func (s *software) buffer(id backend.Buffer) (*buffer, error) {
	b, ok := s.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrUnknownBuffer, id)
	}
	return b, nil
}

func (s *software) MapBuffer(id backend.Buffer) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.buffer(id)
	if err != nil {
		return nil, err
	}
	return b.data, nil
}

func (s *software) UnmapBuffer(id backend.Buffer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.buffer(id)
	return err
}

func (s *software) BufferSize(id backend.Buffer) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buffers[id]; ok {
		return uint64(len(b.data))
	}
	return 0
}

func (s *software) LaunchKernel(id backend.Stream, params backend.Buffer, width, height uint32) error {
	s.mu.RLock()
	st, err := s.stream(id)
	if err == nil {
		_, err = s.buffer(params)
	}
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	s.launches.Add(1)
	kernel := s.kernel
	if kernel == nil {
		return nil
	}
	st.submit(func() error {
		s.mu.RLock()
		b, ok := s.buffers[params]
		s.mu.RUnlock()
		if !ok {
			return fmt.Errorf("launch: %w: %d", backend.ErrUnknownBuffer, params)
		}
		b.mu.Lock()
		p := append([]byte(nil), b.data...)
		b.mu.Unlock()
		return kernel(s, p, width, height)
	})
	return nil
}

func (s *software) FailNextBuild(n int) {
	s.failBuilds.Store(int32(n))
}

func (s *software) FailBuffers(fail bool) {
	s.failBuffers.Store(fail)
}

func (s *software) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		BLASBuilds:  int(s.blasBuilds.Load()),
		TLASBuilds:  int(s.tlasBuilds.Load()),
		Launches:    int(s.launches.Load()),
		LiveBuffers: len(s.buffers),
		LiveAccels:  len(s.accels),
		LiveStreams: len(s.streams),
	}
	for _, b := range s.buffers {
		st.BufferBytes += uint64(len(b.data))
	}
	return st
}

func (s *software) Close() error {
	err := s.WaitAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		st.pool.Stop()
	}
	clear(s.streams)
	clear(s.buffers)
	clear(s.accels)
	clear(s.handles)
	s.closed = true
	return err
}
