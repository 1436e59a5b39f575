package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
)

type table struct {
	mu     *sync.Mutex
	b      backend.Backend
	name   string
	buf    backend.Buffer
	stride int
	slots  int
}

// Table is a device buffer of fixed-size records addressed by slot.
type Table interface {
	// Name returns the label the buffer was created with.
	Name() string

	// Buffer returns the backing device buffer.
	Buffer() backend.Buffer

	// Stride returns the record size in bytes.
	Stride() int

	// Slots returns the number of records.
	Slots() int

	// Write stores a record at slot.
	Write(slot int, record []byte) error

	// Read returns a copy of the record at slot.
	Read(slot int) ([]byte, error)

	// Clear zeroes the record at slot.
	Clear(slot int) error

	// Destroy releases the device buffer.
	Destroy()
}

var _ Table = &table{}

// NewTable allocates a zeroed table of slots records of stride bytes.
//
// Parameters:
//   - b: the backend
//   - name: the buffer label
//   - stride: the record size in bytes
//   - slots: the number of records
//
// Returns:
//   - Table: the table
//   - error: the allocation error
func NewTable(b backend.Backend, name string, stride, slots int) (Table, error) {
	buf, err := b.CreateBuffer(name, uint64(stride)*uint64(max(slots, 1)))
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	return &table{mu: &sync.Mutex{}, b: b, name: name, buf: buf, stride: stride, slots: slots}, nil
}

func (t *table) Name() string           { return t.name }
func (t *table) Buffer() backend.Buffer { return t.buf }
func (t *table) Stride() int            { return t.stride }
func (t *table) Slots() int             { return t.slots }

func (t *table) check(slot int) error {
	if slot < 0 || slot >= t.slots {
		return fmt.Errorf("table %s slot %d of %d: %w", t.name, slot, t.slots, errs.ErrInvalidInput)
	}
	return nil
}

func (t *table) Write(slot int, record []byte) error {
	if err := t.check(slot); err != nil {
		return err
	}
	if len(record) > t.stride {
		return fmt.Errorf("table %s: record of %d bytes exceeds stride %d: %w", t.name, len(record), t.stride, errs.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	view, err := t.b.MapBuffer(t.buf)
	if err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}
	off := slot * t.stride
	n := copy(view[off:off+t.stride], record)
	clear(view[off+n : off+t.stride])
	if err := t.b.UnmapBuffer(t.buf); err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}
	return nil
}

func (t *table) Read(slot int) ([]byte, error) {
	if err := t.check(slot); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	view, err := t.b.MapBuffer(t.buf)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.name, err)
	}
	off := slot * t.stride
	return append([]byte(nil), view[off:off+t.stride]...), nil
}

func (t *table) Clear(slot int) error {
	return t.Write(slot, nil)
}

func (t *table) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf != 0 {
		t.b.DestroyBuffer(t.buf)
		t.buf = 0
	}
}
