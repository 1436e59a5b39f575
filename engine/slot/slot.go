package slot

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
)

var (
	// ErrExhausted is returned by Acquire when every slot is claimed. It wraps errs.ErrResourceExhausted.
	ErrExhausted = fmt.Errorf("slot pool exhausted: %w", errs.ErrResourceExhausted)

	// ErrNotClaimed is returned by Release for a slot that is out of range or not currently claimed.
	ErrNotClaimed = errors.New("slot not claimed")
)

type pool struct {
	mu       *sync.Mutex
	name     string
	capacity int
	words    []uint64
	inUse    int
	hint     int
}

// Pool is a fixed-capacity allocator of integer slots into a device-resident table.
// A claimed slot is never handed out again until it is released.
// Thread-safe for concurrent access.
type Pool interface {
	// Name returns the label used in logs and errors.
	Name() string

	// Capacity returns the number of slots the pool manages.
	Capacity() int

	// InUse returns the number of currently claimed slots.
	InUse() int

	// Acquire claims the lowest free slot.
	//
	// Returns:
	//   - int: the claimed slot index
	//   - error: ErrExhausted if no slot is free
	Acquire() (int, error)

	// Release returns a claimed slot to the pool.
	//
	// Parameters:
	//   - slot: the slot to release
	//
	// Returns:
	//   - error: ErrNotClaimed if the slot is out of range or already free
	Release(slot int) error

	// IsClaimed reports whether a slot is currently claimed.
	//
	// Parameters:
	//   - slot: the slot to query
	//
	// Returns:
	//   - bool: true if claimed
	IsClaimed(slot int) bool

	// Reset releases every slot.
	Reset()
}

var _ Pool = &pool{}

// NewPool creates a pool of capacity slots. Panics if capacity is negative.
//
// Parameters:
//   - name: a label for logs and errors
//   - capacity: the number of slots
//
// Returns:
//   - Pool: the new pool
func NewPool(name string, capacity int) Pool {
	if capacity < 0 {
		panic("slot: negative capacity for pool " + name)
	}
	return &pool{
		mu:       &sync.Mutex{},
		name:     name,
		capacity: capacity,
		words:    make([]uint64, (capacity+63)/64),
	}
}

func (p *pool) Name() string {
	return p.name
}

func (p *pool) Capacity() int {
	return p.capacity
}

func (p *pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

func (p *pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse >= p.capacity {
		return -1, fmt.Errorf("%s: %w", p.name, ErrExhausted)
	}

	// Scan from the hint word, wrapping once. Slots below the hint are free only after a release,
	// which moves the hint back.
	n := len(p.words)
	for i := range n {
		w := (p.hint + i) % n
		free := ^p.words[w]
		if free == 0 {
			continue
		}
		bit := bits.TrailingZeros64(free)
		slot := w*64 + bit
		if slot >= p.capacity {
			continue
		}
		p.words[w] |= 1 << uint(bit)
		p.inUse++
		p.hint = w
		return slot, nil
	}

	return -1, fmt.Errorf("%s: %w", p.name, ErrExhausted)
}

func (p *pool) Release(slot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= p.capacity {
		return fmt.Errorf("%s: slot %d out of range: %w", p.name, slot, ErrNotClaimed)
	}
	w, bit := slot/64, uint(slot%64)
	if p.words[w]&(1<<bit) == 0 {
		return fmt.Errorf("%s: slot %d: %w", p.name, slot, ErrNotClaimed)
	}
	p.words[w] &^= 1 << bit
	p.inUse--
	if w < p.hint {
		p.hint = w
	}
	return nil
}

func (p *pool) IsClaimed(slot int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= p.capacity {
		return false
	}
	return p.words[slot/64]&(1<<uint(slot%64)) != 0
}

func (p *pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	clear(p.words)
	p.inUse = 0
	p.hint = 0
}
