package scene

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
)

// instanceRing keeps N copies of the instance table. put and remove only record the change and
// mark the slot stale in every copy. A copy is written by setActive alone, which the caller runs
// once no in-flight frame reads that copy.
type instanceRing struct {
	tables  []Table
	records map[int]GPUInstanceData
	stale   []map[int]struct{}
}

func newInstanceRing(tables []Table) *instanceRing {
	r := &instanceRing{
		tables:  tables,
		records: make(map[int]GPUInstanceData),
		stale:   make([]map[int]struct{}, len(tables)),
	}
	for i := range r.stale {
		r.stale[i] = make(map[int]struct{})
	}
	return r
}

func (r *instanceRing) check(slot int) error {
	if len(r.tables) == 0 || slot < 0 || slot >= r.tables[0].Slots() {
		return fmt.Errorf("instance slot %d: %w", slot, errs.ErrInvalidInput)
	}
	return nil
}

func (r *instanceRing) markAll(slot int) {
	for i := range r.stale {
		r.stale[i][slot] = struct{}{}
	}
}

func (r *instanceRing) put(slot int, rec GPUInstanceData) error {
	if err := r.check(slot); err != nil {
		return err
	}
	r.records[slot] = rec
	r.markAll(slot)
	return nil
}

func (r *instanceRing) remove(slot int) error {
	if err := r.check(slot); err != nil {
		return err
	}
	delete(r.records, slot)
	r.markAll(slot)
	return nil
}

func (r *instanceRing) get(slot int) (GPUInstanceData, bool) {
	rec, ok := r.records[slot]
	return rec, ok
}

// setActive brings copy i up to date. Slots that fail to write stay stale.
func (r *instanceRing) setActive(i int) error {
	var err error
	for slot := range r.stale[i] {
		var e error
		if rec, ok := r.records[slot]; ok {
			e = r.tables[i].Write(slot, rec.Marshal())
		} else {
			e = r.tables[i].Clear(slot)
		}
		if e != nil {
			err = errors.Join(err, e)
			continue
		}
		delete(r.stale[i], slot)
	}
	return err
}

func (r *instanceRing) destroy() {
	for _, t := range r.tables {
		t.Destroy()
	}
	r.tables = nil
	clear(r.records)
}
