// SPDX-License-Identifier: Apache-2.0

package handle

import "github.com/cockroachdb/errors"

type slot struct {
	next       uint16
	generation uint8
	free       bool
}

// table is the slot bookkeeping shared by Pool and Store.
type table struct {
	slots  []slot
	head   uint16
	live   int
	typeID uint8
}

func newTable(capacity int, typeID uint8) (table, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return table{}, errors.Wrapf(ErrInvalidCapacity, "%d", capacity)
	}
	t := table{slots: make([]slot, capacity), typeID: typeID}
	t.reset()
	return t, nil
}

// acquire takes the head of the free list and advances its generation.
func (t *table) acquire() (int, Handle, bool) {
	if t.head == endOfList {
		return 0, Invalid, false
	}
	i := t.head
	s := &t.slots[i]
	t.head = s.next
	s.next = endOfList
	s.free = false
	s.generation = (s.generation + 1) & generationMask
	t.live++
	return int(i), makeHandle(i, s.generation, t.typeID), true
}

// lookup returns the slot index h refers to if it is live.
func (t *table) lookup(h Handle) (int, bool) {
	if !h.IsValid() || h.TypeID() != t.typeID {
		return 0, false
	}
	i := h.Index()
	if i >= len(t.slots) {
		return 0, false
	}
	s := &t.slots[i]
	if s.free || s.generation != h.Generation() {
		return 0, false
	}
	return i, true
}

func (t *table) release(i int) {
	s := &t.slots[i]
	s.free = true
	s.next = t.head
	t.head = uint16(i)
	t.live--
}

// clear releases every live slot, calling fn for each first. Generations are
// kept so outstanding handles stay stale.
func (t *table) clear(fn func(i int)) {
	for i := len(t.slots) - 1; i >= 0; i-- {
		if t.slots[i].free {
			continue
		}
		if fn != nil {
			fn(i)
		}
		t.release(i)
	}
}

// reset rebuilds the free list in index order without inspecting slot state.
func (t *table) reset() {
	n := len(t.slots)
	for i := range t.slots {
		next := uint16(endOfList)
		if i+1 < n {
			next = uint16(i + 1)
		}
		t.slots[i].next = next
		t.slots[i].free = true
	}
	t.head = 0
	t.live = 0
}

func (t *table) full() bool { return t.head == endOfList }
