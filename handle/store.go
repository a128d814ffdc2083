// SPDX-License-Identifier: Apache-2.0

package handle

import "iter"

// Store is a fixed-capacity store of T values addressed by Handle. It follows
// the same slot and generation rules as Pool.
type Store[T any] struct {
	t     table
	items []T
}

// NewStore creates a store with capacity slots whose handles carry typeID.
func NewStore[T any](capacity int, typeID uint8) (*Store[T], error) {
	t, err := newTable(capacity, typeID)
	if err != nil {
		return nil, err
	}
	return &Store[T]{t: t, items: make([]T, capacity)}, nil
}

// Insert stores v and returns its handle, or (Invalid, ErrFull).
func (s *Store[T]) Insert(v T) (Handle, error) {
	i, h, ok := s.t.acquire()
	if !ok {
		return Invalid, ErrFull
	}
	s.items[i] = v
	return h, nil
}

// Erase removes the value h refers to. It reports false if h does not resolve.
func (s *Store[T]) Erase(h Handle) bool {
	i, ok := s.t.lookup(h)
	if !ok {
		return false
	}
	var zero T
	s.items[i] = zero
	s.t.release(i)
	return true
}

// Get returns the value h refers to.
func (s *Store[T]) Get(h Handle) (T, bool) {
	i, ok := s.t.lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	return s.items[i], true
}

// Ptr returns a pointer to the value h refers to, or nil. The pointer is only
// meaningful until h is erased.
func (s *Store[T]) Ptr(h Handle) *T {
	i, ok := s.t.lookup(h)
	if !ok {
		return nil
	}
	return &s.items[i]
}

// Has reports whether h resolves.
func (s *Store[T]) Has(h Handle) bool {
	_, ok := s.t.lookup(h)
	return ok
}

// All yields every live handle with a pointer to its value, in index order.
func (s *Store[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		for i := range s.t.slots {
			sl := &s.t.slots[i]
			if sl.free {
				continue
			}
			if !yield(makeHandle(uint16(i), sl.generation, s.t.typeID), &s.items[i]) {
				return
			}
		}
	}
}

// Clear erases every value. Outstanding handles stay stale.
func (s *Store[T]) Clear() {
	var zero T
	s.t.clear(func(i int) { s.items[i] = zero })
}

// Len returns the number of live values.
func (s *Store[T]) Len() int { return s.t.live }

// Cap returns the number of slots.
func (s *Store[T]) Cap() int { return len(s.t.slots) }

// TypeID returns the type id stamped into every handle.
func (s *Store[T]) TypeID() uint8 { return s.t.typeID }
