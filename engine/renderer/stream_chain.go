package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
)

type streamChain struct {
	mu      *sync.Mutex
	b       backend.Backend
	streams []backend.Stream
	index   int
	started bool
}

// StreamChain rotates through a fixed ring of backend streams, one per frame in flight.
// Acquiring a stream waits for the work submitted on it N frames earlier, so at most N frames
// are queued on the device at once.
type StreamChain interface {
	// Acquire advances to the next stream and waits for its previous frame to finish.
	//
	// Returns:
	//   - backend.Stream: the stream for the new frame
	//   - error: the error reported by the previous frame on that stream
	Acquire() (backend.Stream, error)

	// Current returns the stream of the current frame.
	Current() backend.Stream

	// Index returns the ring position of the current stream.
	Index() int

	// Len returns the number of streams in the ring.
	Len() int

	// WaitAll waits for every stream in the ring.
	WaitAll() error

	// Destroy waits for and releases every stream.
	Destroy()
}

var _ StreamChain = &streamChain{}

// NewStreamChain creates n streams on b. Panics if b is nil.
//
// Parameters:
//   - b: the backend
//   - n: the ring length, at least 1
//
// Returns:
//   - StreamChain: the chain
//   - error: the stream creation error, nothing is left allocated on failure
func NewStreamChain(b backend.Backend, n int) (StreamChain, error) {
	if b == nil {
		panic("renderer: nil backend")
	}
	c := &streamChain{mu: &sync.Mutex{}, b: b}
	for i := range max(n, 1) {
		s, err := b.CreateStream()
		if err != nil {
			c.Destroy()
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		c.streams = append(c.streams, s)
	}
	return c, nil
}

func (c *streamChain) Acquire() (backend.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return 0, backend.ErrUnknownStream
	}
	if c.started {
		c.index = (c.index + 1) % len(c.streams)
	}
	c.started = true
	s := c.streams[c.index]
	return s, c.b.WaitStream(s)
}

func (c *streamChain) Current() backend.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return 0
	}
	return c.streams[c.index]
}

func (c *streamChain) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *streamChain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *streamChain) WaitAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for _, s := range c.streams {
		err = errors.Join(err, c.b.WaitStream(s))
	}
	return err
}

func (c *streamChain) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.streams {
		if err := c.b.WaitStream(s); err != nil {
			logger.Warningf("stream %d finished with error: %v", s, err)
		}
		c.b.DestroyStream(s)
	}
	c.streams = nil
	c.index = 0
	c.started = false
}
