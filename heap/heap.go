// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"log/slog"
	"math"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/wundergraph/go-memkit/block"
	"github.com/wundergraph/go-memkit/internal/align"
	"github.com/wundergraph/go-memkit/internal/logger"
	"github.com/wundergraph/go-memkit/internal/owner"
)

const (
	// Quantum is the granularity of allocation payloads.
	Quantum = 64

	// HeaderSize is the bookkeeping charged against a block for every
	// allocation, live or free.
	HeaderSize = 64

	// MinSplit is the smallest payload a split remainder must be able to hold.
	MinSplit = Quantum

	// MaxRefs is the saturation point of the reference count.
	MaxRefs = math.MaxUint16

	// MaxAllocation is the largest payload a single allocation may request.
	MaxAllocation = math.MaxInt32 - HeaderSize - block.Overhead

	// DefaultMinBlockSize is the smallest block a heap asks its provider for.
	DefaultMinBlockSize = 1024 * 256 // 256KB
)

const nilIndex int32 = -1

var heapIDs atomic.Uint32

// Ref identifies an allocation. The zero Ref is never valid.
type Ref struct {
	heap      uint32
	index     int32
	signature uint32
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r.signature == 0 }

type allocation struct {
	block     *heapBlock // nil once the entry has been absorbed or removed
	offset    int        // header position within the block
	size      int        // payload capacity, multiple of Quantum
	requested int
	refs      uint16
	free      bool
	signature uint32

	prev, next         int32 // address order within the block
	prevFree, nextFree int32 // heap-wide free list
}

type heapBlock struct {
	blk   *block.Block
	first int32
	count int // allocations in the block, live and free
	live  int
}

// Heap is a first-fit allocator with splitting, coalescing and per-allocation
// reference counts. A Heap is owned by one goroutine at a time.
type Heap struct {
	guard    owner.Guard
	provider *block.Provider
	log      *slog.Logger
	id       uint32

	blocks   []*heapBlock
	allocs   []allocation
	spare    []int32 // recycled side-table entries
	freeHead int32
	stamp    uint32

	minBlockSize int
	stats        counters
}

type counters struct {
	allocs     int
	frees      int
	splits     int
	mergesPrev int
	mergesNext int
	grows      int
	trims      int
}

// Option represents a configuration option for a Heap.
type Option func(*Heap)

// WithMinBlockSize sets the minimum size for new blocks pushed by the heap.
func WithMinBlockSize(size int) Option {
	return func(h *Heap) {
		h.minBlockSize = size
	}
}

// WithProvider sets the block provider. Defaults to block.DefaultProvider.
func WithProvider(p *block.Provider) Option {
	return func(h *Heap) {
		h.provider = p
	}
}

// WithLogger sets the logger for block growth and release events.
func WithLogger(l *slog.Logger) Option {
	return func(h *Heap) {
		h.log = l
	}
}

// New creates an empty heap. Blocks are pushed on demand.
func New(opts ...Option) (*Heap, error) {
	h := &Heap{
		id:           heapIDs.Add(1),
		freeHead:     nilIndex,
		minBlockSize: DefaultMinBlockSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.provider == nil {
		h.provider = block.DefaultProvider
	}
	if h.log == nil {
		h.log = logger.L
	}
	if h.minBlockSize < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "min block size %d", h.minBlockSize)
	}
	return h, nil
}

// Allocate returns a ref to at least size bytes. Memory reused from earlier
// allocations is not cleared; use AllocateZeroed for that.
func (h *Heap) Allocate(size int) (Ref, error) {
	return h.enterAllocate(size, false)
}

// AllocateZeroed is Allocate with the payload cleared.
func (h *Heap) AllocateZeroed(size int) (Ref, error) {
	return h.enterAllocate(size, true)
}

func (h *Heap) enterAllocate(size int, zero bool) (Ref, error) {
	if size < 0 {
		return Ref{}, errors.Wrapf(ErrInvalidSize, "allocation size %d", size)
	}
	if size > MaxAllocation {
		return Ref{}, errors.Wrapf(ErrTooLarge, "%d bytes", size)
	}
	if err := h.guard.Enter(); err != nil {
		return Ref{}, err
	}
	defer h.guard.Exit()

	return h.allocate(size, zero)
}

func (h *Heap) allocate(size int, zero bool) (Ref, error) {
	q := align.Up(max(size, 1), Quantum)

	idx := h.findFree(q)
	if idx == nilIndex {
		hb, err := h.pushBlock(q + HeaderSize)
		if err != nil {
			return Ref{}, err
		}
		idx = hb.first
	}

	h.split(idx, q)
	h.unlinkFree(idx)

	a := &h.allocs[idx]
	a.free = false
	a.refs = 0
	a.requested = size
	a.signature = h.nextStamp()

	hb := a.block
	hb.live++
	hb.blk.SetUsed(hb.blk.Used() + HeaderSize + a.size)
	h.stats.allocs++

	payload := h.payload(a)
	if zero {
		clear(payload)
	}
	return Ref{heap: h.id, index: idx, signature: a.signature}, nil
}

// findFree returns the first free allocation with at least q payload bytes.
func (h *Heap) findFree(q int) int32 {
	for i := h.freeHead; i != nilIndex; i = h.allocs[i].nextFree {
		if h.allocs[i].size >= q {
			return i
		}
	}
	return nilIndex
}

// split carves q payload bytes off the front of free allocation idx when the
// remainder can hold a header and MinSplit bytes. The remainder follows idx in
// both lists.
func (h *Heap) split(idx int32, q int) {
	rem := h.allocs[idx].size - q
	if rem < HeaderSize+MinSplit {
		return
	}
	n := h.newEntry()
	a := &h.allocs[idx]
	h.allocs[n] = allocation{
		block:    a.block,
		offset:   a.offset + HeaderSize + q,
		size:     rem - HeaderSize,
		free:     true,
		prev:     idx,
		next:     a.next,
		prevFree: idx,
		nextFree: a.nextFree,
	}
	if a.next != nilIndex {
		h.allocs[a.next].prev = n
	}
	if a.nextFree != nilIndex {
		h.allocs[a.nextFree].prevFree = n
	}
	a.next = n
	a.nextFree = n
	a.size = q
	a.block.count++
	h.stats.splits++
}

// Free returns the allocation to the heap, merging it with free neighbours.
// Allocations with outstanding references cannot be freed.
func (h *Heap) Free(ref Ref) error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	idx, err := h.resolve(ref, ErrDoubleFree)
	if err != nil {
		return err
	}
	if refs := h.allocs[idx].refs; refs != 0 {
		return errors.Wrapf(ErrReferenced, "%d references", refs)
	}
	h.free(idx)
	return nil
}

func (h *Heap) free(idx int32) {
	a := &h.allocs[idx]
	hb := a.block
	hb.live--
	hb.blk.SetUsed(hb.blk.Used() - HeaderSize - a.size)
	h.stats.frees++

	cur := idx
	if p := a.prev; p != nilIndex && h.allocs[p].free {
		h.allocs[p].size += HeaderSize + a.size
		h.unlinkAddr(idx)
		h.releaseEntry(idx)
		cur = p
		h.stats.mergesPrev++
	} else {
		a.free = true
		a.refs = 0
		h.pushFree(idx)
	}

	c := &h.allocs[cur]
	if n := c.next; n != nilIndex && h.allocs[n].free {
		c.size += HeaderSize + h.allocs[n].size
		h.unlinkFree(n)
		h.unlinkAddr(n)
		h.releaseEntry(n)
		h.stats.mergesNext++
	}
}

// AddRef increments the allocation's reference count. A count at MaxRefs stays
// there.
func (h *Heap) AddRef(ref Ref) error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	idx, err := h.resolve(ref, ErrUseAfterFree)
	if err != nil {
		return err
	}
	if a := &h.allocs[idx]; a.refs < MaxRefs {
		a.refs++
	}
	return nil
}

// ReleaseRef decrements the allocation's reference count and frees the
// allocation when the count reaches zero, which it reports. A saturated count
// is never decremented.
func (h *Heap) ReleaseRef(ref Ref) (bool, error) {
	if err := h.guard.Enter(); err != nil {
		return false, err
	}
	defer h.guard.Exit()

	idx, err := h.resolve(ref, ErrUseAfterFree)
	if err != nil {
		return false, err
	}
	a := &h.allocs[idx]
	switch a.refs {
	case 0:
		return false, ErrNotReferenced
	case MaxRefs:
		return false, nil
	}
	a.refs--
	if a.refs > 0 {
		return false, nil
	}
	h.free(idx)
	return true, nil
}

// Bytes returns the payload of a live allocation. Its length is the requested
// size and its capacity the quantized size.
func (h *Heap) Bytes(ref Ref) ([]byte, error) {
	idx, err := h.resolve(ref, ErrUseAfterFree)
	if err != nil {
		return nil, err
	}
	a := &h.allocs[idx]
	return h.payload(a)[:a.requested], nil
}

// Size returns the quantized payload size of a live allocation.
func (h *Heap) Size(ref Ref) (int, error) {
	idx, err := h.resolve(ref, ErrUseAfterFree)
	if err != nil {
		return 0, err
	}
	return h.allocs[idx].size, nil
}

// RefCount returns the reference count of a live allocation.
func (h *Heap) RefCount(ref Ref) (int, error) {
	idx, err := h.resolve(ref, ErrUseAfterFree)
	if err != nil {
		return 0, err
	}
	return int(h.allocs[idx].refs), nil
}

// resolve maps ref to its side-table entry. An entry that still carries the
// ref's signature but is free yields freed.
func (h *Heap) resolve(ref Ref, freed error) (int32, error) {
	if ref.IsZero() {
		return nilIndex, ErrInvalidRef
	}
	if ref.heap != h.id {
		return nilIndex, ErrForeignRef
	}
	if ref.index < 0 || int(ref.index) >= len(h.allocs) {
		return nilIndex, errors.Wrapf(ErrInvalidRef, "index %d", ref.index)
	}
	a := &h.allocs[ref.index]
	if a.signature != ref.signature {
		return nilIndex, errors.Wrapf(ErrInvalidRef, "stale signature %#x", ref.signature)
	}
	if a.free {
		return nilIndex, freed
	}
	return ref.index, nil
}

func (h *Heap) payload(a *allocation) []byte {
	start := a.offset + HeaderSize
	return a.block.blk.Bytes()[start : start+a.size : start+a.size]
}

func (h *Heap) nextStamp() uint32 {
	h.stamp++
	if h.stamp == 0 {
		h.stamp++
	}
	return h.stamp
}

// PushBlock appends a block with room for at least minSize payload bytes.
func (h *Heap) PushBlock(minSize int) error {
	if minSize < 0 {
		return errors.Wrapf(ErrInvalidSize, "block size %d", minSize)
	}
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	_, err := h.pushBlock(minSize + HeaderSize)
	return err
}

// PreemptivelyPushBlock pushes a block when the heap has no free allocation at
// all. Call it at safe points to avoid growing during latency sensitive work.
func (h *Heap) PreemptivelyPushBlock() error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	if h.freeHead != nilIndex {
		return nil
	}
	_, err := h.pushBlock(h.minBlockSize)
	return err
}

func (h *Heap) pushBlock(minSize int) (*heapBlock, error) {
	size := max(minSize, h.minBlockSize, HeaderSize+MinSplit)
	b, err := h.provider.Allocate(block.KindHeap, size)
	if err != nil {
		return nil, errors.Wrap(err, "heap: push block")
	}
	hb := &heapBlock{blk: b, count: 1}
	idx := h.newEntry()
	h.allocs[idx] = allocation{
		block:    hb,
		size:     align.Down(b.Cap()-HeaderSize, Quantum),
		free:     true,
		prev:     nilIndex,
		next:     nilIndex,
		prevFree: nilIndex,
		nextFree: nilIndex,
	}
	hb.first = idx
	h.pushFree(idx)
	h.blocks = append(h.blocks, hb)
	h.stats.grows++

	h.log.Debug("heap block pushed",
		"block", b.ID(),
		"capacity", b.Cap(),
		"blocks", len(h.blocks),
	)
	return hb, nil
}

// RemoveBlock releases the block with the given id. The block must not hold
// live allocations.
func (h *Heap) RemoveBlock(id uint64) error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	i := slices.IndexFunc(h.blocks, func(hb *heapBlock) bool { return hb.blk.ID() == id })
	if i < 0 {
		return errors.Wrapf(ErrForeignBlock, "block %d", id)
	}
	if live := h.blocks[i].live; live > 0 {
		return errors.Wrapf(ErrBlockInUse, "block %d has %d live allocations", id, live)
	}
	return h.removeBlockAt(i)
}

func (h *Heap) removeBlockAt(i int) error {
	hb := h.blocks[i]
	for e := hb.first; e != nilIndex; {
		next := h.allocs[e].next
		h.unlinkFree(e)
		h.releaseEntry(e)
		e = next
	}
	h.blocks = slices.Delete(h.blocks, i, i+1)
	h.stats.trims++

	h.log.Debug("heap block removed", "block", hb.blk.ID(), "blocks", len(h.blocks))
	return h.provider.Deallocate(hb.blk)
}

// Shrink releases every block without live allocations and returns how many
// were released.
func (h *Heap) Shrink() (int, error) {
	if err := h.guard.Enter(); err != nil {
		return 0, err
	}
	defer h.guard.Exit()

	released := 0
	for i := 0; i < len(h.blocks); {
		if h.blocks[i].live > 0 {
			i++
			continue
		}
		if err := h.removeBlockAt(i); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// Clear releases every block. All refs become invalid.
func (h *Heap) Clear() error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	var errs error
	for _, hb := range h.blocks {
		if err := h.provider.Deallocate(hb.blk); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	h.log.Debug("heap cleared", "blocks", len(h.blocks))

	h.blocks = nil
	h.allocs = h.allocs[:0]
	h.spare = h.spare[:0]
	h.freeHead = nilIndex
	return errs
}

// newEntry returns a side-table slot, reusing a recycled one when possible.
// It may grow h.allocs, so pointers into it must be taken afterwards.
func (h *Heap) newEntry() int32 {
	if n := len(h.spare); n > 0 {
		idx := h.spare[n-1]
		h.spare = h.spare[:n-1]
		return idx
	}
	h.allocs = append(h.allocs, allocation{})
	return int32(len(h.allocs) - 1)
}

// releaseEntry retires a side-table slot. The signature is kept so a late
// Free through an old ref still reports a double free until the slot is reused.
func (h *Heap) releaseEntry(idx int32) {
	a := &h.allocs[idx]
	*a = allocation{
		signature: a.signature,
		free:      true,
		prev:      nilIndex,
		next:      nilIndex,
		prevFree:  nilIndex,
		nextFree:  nilIndex,
	}
	h.spare = append(h.spare, idx)
}

func (h *Heap) pushFree(idx int32) {
	a := &h.allocs[idx]
	a.prevFree = nilIndex
	a.nextFree = h.freeHead
	if h.freeHead != nilIndex {
		h.allocs[h.freeHead].prevFree = idx
	}
	h.freeHead = idx
}

func (h *Heap) unlinkFree(idx int32) {
	a := &h.allocs[idx]
	if a.prevFree != nilIndex {
		h.allocs[a.prevFree].nextFree = a.nextFree
	} else if h.freeHead == idx {
		h.freeHead = a.nextFree
	}
	if a.nextFree != nilIndex {
		h.allocs[a.nextFree].prevFree = a.prevFree
	}
	a.prevFree, a.nextFree = nilIndex, nilIndex
}

// unlinkAddr drops idx from its block's address list.
func (h *Heap) unlinkAddr(idx int32) {
	a := &h.allocs[idx]
	if a.prev != nilIndex {
		h.allocs[a.prev].next = a.next
	} else {
		a.block.first = a.next
	}
	if a.next != nilIndex {
		h.allocs[a.next].prev = a.prev
	}
	a.block.count--
}
