package renderer

import "sync"

// DefaultMaxAccumFrames caps the progressive accumulation counter.
const DefaultMaxAccumFrames = 1024

// Accumulator counts how many frames have been averaged into the current image.
type Accumulator struct {
	mu    sync.Mutex
	count uint32
	max   uint32
}

// NewAccumulator creates an accumulator capped at max frames. A max of 0 uses DefaultMaxAccumFrames.
func NewAccumulator(max uint32) *Accumulator {
	if max == 0 {
		max = DefaultMaxAccumFrames
	}
	return &Accumulator{max: max}
}

// Advance moves to the next frame. A camera change or scene motion restarts accumulation at 0;
// otherwise the count grows by one up to the cap.
//
// Parameters:
//   - cameraChanged: the camera moved or its settings changed this frame
//   - motion: the scene moved this frame
//
// Returns:
//   - uint32: the count for this frame
func (a *Accumulator) Advance(cameraChanged, motion bool) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case cameraChanged:
		a.count = 0
	case a.count < a.max:
		a.count++
	}
	if motion {
		a.count = 0
	}
	return a.count
}

// Reset restarts accumulation at 0.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count = 0
}

// Count returns the current count.
func (a *Accumulator) Count() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Max returns the cap.
func (a *Accumulator) Max() uint32 {
	return a.max
}
