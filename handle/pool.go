// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"github.com/cockroachdb/errors"
)

// Pool is a fixed-capacity store of elementSize byte slots addressed by Handle.
type Pool struct {
	table
	elementSize int
	buf         []byte
	owned       bool
	closed      bool
}

type options struct {
	buf []byte
}

// Option represents a configuration option for a Pool.
type Option func(*options)

// WithBuffer runs the pool over buf instead of allocating its own storage.
// buf must hold capacity*elementSize bytes. The pool never releases it.
func WithBuffer(buf []byte) Option {
	return func(o *options) {
		o.buf = buf
	}
}

// New creates a pool of capacity slots of elementSize bytes each. Every handle
// it issues carries typeID.
func New(elementSize, capacity int, typeID uint8, opts ...Option) (*Pool, error) {
	if elementSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "%d", elementSize)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t, err := newTable(capacity, typeID)
	if err != nil {
		return nil, err
	}
	p := &Pool{table: t, elementSize: elementSize}

	need := capacity * elementSize
	if o.buf != nil {
		if len(o.buf) < need {
			return nil, errors.Wrapf(ErrBufferTooSmall, "%d bytes for %d slots of %d bytes", len(o.buf), capacity, elementSize)
		}
		p.buf = o.buf[:need:need]
		clear(p.buf)
	} else {
		p.buf = make([]byte, need)
		p.owned = true
	}
	return p, nil
}

// Insert copies src into a free slot and returns its handle. The rest of the
// slot is zeroed; a nil src yields a zeroed slot. A full pool returns
// (Invalid, ErrFull) and is left unchanged.
func (p *Pool) Insert(src []byte) (Handle, error) {
	if p.closed {
		return Invalid, ErrClosed
	}
	if len(src) > p.elementSize {
		return Invalid, errors.Wrapf(ErrInvalidSize, "insert of %d bytes into %d byte slots", len(src), p.elementSize)
	}
	i, h, ok := p.acquire()
	if !ok {
		return Invalid, ErrFull
	}
	dst := p.slot(i)
	n := copy(dst, src)
	clear(dst[n:])
	return h, nil
}

// Erase frees the slot h refers to. It reports false if h does not resolve.
func (p *Pool) Erase(h Handle) bool {
	if p.closed {
		return false
	}
	i, ok := p.lookup(h)
	if !ok {
		return false
	}
	clear(p.slot(i))
	p.release(i)
	return true
}

// At returns the slot h refers to, or nil if h does not resolve.
func (p *Pool) At(h Handle) []byte {
	if p.closed {
		return nil
	}
	i, ok := p.lookup(h)
	if !ok {
		return nil
	}
	return p.slot(i)
}

// Has reports whether h resolves to a live slot.
func (p *Pool) Has(h Handle) bool {
	if p.closed {
		return false
	}
	_, ok := p.lookup(h)
	return ok
}

// Clear erases every live slot. Outstanding handles stay stale.
func (p *Pool) Clear() {
	if p.closed {
		return
	}
	p.clear(func(i int) { clear(p.slot(i)) })
}

// Reset makes every slot free again without erasing them one by one. Slot
// contents are left as they are.
func (p *Pool) Reset() {
	if p.closed {
		return
	}
	p.reset()
}

// Close releases the pool's storage. A caller supplied buffer is left alone.
func (p *Pool) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	if p.owned {
		p.buf = nil
	}
	p.slots = nil
	p.head = endOfList
	p.live = 0
	return nil
}

// Len returns the number of live slots.
func (p *Pool) Len() int { return p.live }

// Cap returns the number of slots.
func (p *Pool) Cap() int { return len(p.slots) }

// TypeID returns the type id stamped into every handle.
func (p *Pool) TypeID() uint8 { return p.typeID }

// ElementSize returns the size of one slot.
func (p *Pool) ElementSize() int { return p.elementSize }

// Full reports whether Insert would fail with ErrFull.
func (p *Pool) Full() bool { return p.full() }

func (p *Pool) slot(i int) []byte {
	off := i * p.elementSize
	return p.buf[off : off+p.elementSize : off+p.elementSize]
}
