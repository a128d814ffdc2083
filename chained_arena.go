// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/wundergraph/go-memkit/block"
	"github.com/wundergraph/go-memkit/internal/align"
	"github.com/wundergraph/go-memkit/internal/logger"
	"github.com/wundergraph/go-memkit/internal/owner"
)

const (
	// DefaultMinBlockSize is the smallest block an arena asks its provider for.
	// The provider rounds it up to its granularity.
	DefaultMinBlockSize = 1024 * 32 // 32KB

	// DefaultPreemptiveThreshold is the free space below which
	// PreemptivelyPushBlock grows the chain.
	DefaultPreemptiveThreshold = 1024
)

// Arena is a bump allocator over a growable chain of blocks.
//
// Memory past each block's used counter is always zero: new blocks arrive
// zeroed and every rewind clears what it reclaims.
//
// An Arena is owned by one goroutine at a time. Operations entered
// concurrently fail with ErrConcurrentUse.
type Arena struct {
	guard    owner.Guard
	provider *block.Provider
	log      *slog.Logger

	blocks   []*block.Block
	current  int // allocation cursor into blocks, -1 while the chain is empty
	capacity int
	used     int
	peak     int

	minBlockSize      int
	initialBlockCount int
	preemptThreshold  int

	temps []*TemporaryMemory // open tokens, innermost last
	epoch uint64             // bumped by Clear and Reset to invalidate tokens
}

// Option represents a configuration option for an Arena.
type Option func(*Arena)

// WithMinBlockSize sets the minimum size for new blocks pushed by the arena.
func WithMinBlockSize(size int) Option {
	return func(a *Arena) {
		a.minBlockSize = size
	}
}

// WithInitialBlockCount sets the number of blocks pushed by New.
func WithInitialBlockCount(count int) Option {
	return func(a *Arena) {
		a.initialBlockCount = count
	}
}

// WithProvider sets the block provider. Defaults to block.DefaultProvider.
func WithProvider(p *block.Provider) Option {
	return func(a *Arena) {
		a.provider = p
	}
}

// WithPreemptiveThreshold sets the free space threshold used by PreemptivelyPushBlock.
func WithPreemptiveThreshold(n int) Option {
	return func(a *Arena) {
		a.preemptThreshold = n
	}
}

// WithLogger sets the logger for arena growth and release events.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		a.log = l
	}
}

// New creates an arena. If no options are provided, it uses DefaultMinBlockSize,
// block.DefaultProvider and pushes no block until the first allocation.
func New(opts ...Option) (*Arena, error) {
	a := &Arena{
		current:          -1,
		minBlockSize:     DefaultMinBlockSize,
		preemptThreshold: DefaultPreemptiveThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.provider == nil {
		a.provider = block.DefaultProvider
	}
	if a.log == nil {
		a.log = logger.L
	}
	if a.minBlockSize < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "min block size %d", a.minBlockSize)
	}

	for i := 0; i < a.initialBlockCount; i++ {
		if _, err := a.pushBlock(a.minBlockSize); err != nil {
			_ = a.clear()
			return nil, err
		}
	}
	return a, nil
}

// PushBlock appends a block with at least minSize usable bytes to the chain.
// The new block becomes the last block, and the current block too if the chain
// was empty.
func (a *Arena) PushBlock(minSize int) error {
	if minSize < 0 {
		return errors.Wrapf(ErrInvalidSize, "block size %d", minSize)
	}
	if err := a.guard.Enter(); err != nil {
		return err
	}
	defer a.guard.Exit()

	_, err := a.pushBlock(minSize)
	return err
}

func (a *Arena) pushBlock(minSize int) (*block.Block, error) {
	b, err := a.provider.Allocate(block.KindArena, max(minSize, a.minBlockSize))
	if err != nil {
		return nil, errors.Wrap(err, "arena: push block")
	}
	a.blocks = append(a.blocks, b)
	a.capacity += b.Cap()
	if a.current < 0 {
		a.current = 0
	}
	a.log.Debug("arena block pushed",
		"block", b.ID(),
		"capacity", b.Cap(),
		"blocks", len(a.blocks),
		"total", a.capacity,
	)
	return b, nil
}

// Allocate returns size bytes aligned to alignment. The memory is zeroed.
//
// The search starts at the current block and walks forward to the first block
// with room; when none has room a block sized for the request is pushed. If the
// chosen block is not the starting block, the current block only advances to it
// when the chosen block is left with strictly more free space than the starting
// block, so one oversized request does not strand the starting block's space.
func (a *Arena) Allocate(size, alignment int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "allocation size %d", size)
	}
	if !align.IsPow2(alignment) {
		return nil, errors.Wrapf(ErrBadAlignment, "%d", alignment)
	}
	if err := a.guard.Enter(); err != nil {
		return nil, err
	}
	defer a.guard.Exit()

	return a.allocate(size, alignment)
}

func (a *Arena) allocate(size, alignment int) ([]byte, error) {
	if len(a.blocks) == 0 {
		if _, err := a.pushBlock(size + alignment - 1); err != nil {
			return nil, err
		}
	}

	start := a.current
	if n := len(a.temps); n > 0 && a.temps[n-1].block > start {
		// scoped allocations stay forward of the innermost saved cursor
		start = a.temps[n-1].block
	}

	chosen, off := -1, 0
	for i := start; i < len(a.blocks); i++ {
		if o, ok := fit(a.blocks[i], size, alignment); ok {
			chosen, off = i, o
			break
		}
	}
	if chosen < 0 {
		b, err := a.pushBlock(size + alignment - 1)
		if err != nil {
			return nil, err
		}
		chosen = len(a.blocks) - 1
		o, ok := fit(b, size, alignment)
		if !ok {
			return nil, errors.AssertionFailedf("arena: block %d of %d bytes cannot fit %d bytes", b.ID(), b.Cap(), size)
		}
		off = o
	}

	b := a.blocks[chosen]
	prev := b.Used()
	b.SetUsed(off + size)
	a.used += off + size - prev
	if a.used > a.peak {
		a.peak = a.used
	}

	if chosen != a.current && b.Remaining() > a.blocks[a.current].Remaining() {
		a.current = chosen
	}
	return b.Bytes()[off : off+size : off+size], nil
}

// fit returns the offset at which size bytes aligned to alignment would start
// in b, and whether they fit.
func fit(b *block.Block, size, alignment int) (int, bool) {
	used := b.Used()
	pad := int(align.Padding(b.Addr()+uintptr(used), uintptr(alignment)))
	off := used + pad
	if off > b.Cap() || size > b.Cap()-off {
		return 0, false
	}
	return off, true
}

// Alloc satisfies the Allocator interface. It returns nil when the request
// cannot be served.
func (a *Arena) Alloc(size, alignment uintptr) unsafe.Pointer {
	buf, err := a.Allocate(int(size), int(alignment))
	if err != nil {
		a.log.Debug("arena alloc failed", "size", size, "alignment", alignment, "error", err)
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(buf))
}

// PreemptivelyPushBlock pushes a new block when the last block has less than
// the preemptive threshold left, without moving the current block. Call it at
// safe points to avoid growing in the middle of latency sensitive work.
func (a *Arena) PreemptivelyPushBlock() error {
	if err := a.guard.Enter(); err != nil {
		return err
	}
	defer a.guard.Exit()

	if n := len(a.blocks); n > 0 && a.blocks[n-1].Remaining() >= a.preemptThreshold {
		return nil
	}
	_, err := a.pushBlock(a.minBlockSize)
	return err
}

// Clear releases every block and returns the arena to its empty state.
// Open temporary memory tokens become stale.
func (a *Arena) Clear() error {
	if err := a.guard.Enter(); err != nil {
		return err
	}
	defer a.guard.Exit()

	return a.clear()
}

func (a *Arena) clear() error {
	var errs error
	for _, b := range a.blocks {
		if err := a.provider.Deallocate(b); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	a.log.Debug("arena cleared", "blocks", len(a.blocks), "capacity", a.capacity)

	clear(a.blocks)
	a.blocks = a.blocks[:0]
	a.current = -1
	a.capacity = 0
	a.used = 0
	a.temps = nil
	a.epoch++
	return errs
}

// Shrink releases trailing blocks that are completely unused. The current block
// and any block holding the saved cursor of an open temporary token are kept.
// It returns the number of blocks released.
func (a *Arena) Shrink() (int, error) {
	if err := a.guard.Enter(); err != nil {
		return 0, err
	}
	defer a.guard.Exit()

	floor := a.current
	for _, t := range a.temps {
		floor = max(floor, t.block)
	}

	released := 0
	for n := len(a.blocks) - 1; n > floor && a.blocks[n].Used() == 0; n-- {
		b := a.blocks[n]
		a.blocks[n] = nil
		a.blocks = a.blocks[:n]
		a.capacity -= b.Cap()
		if err := a.provider.Deallocate(b); err != nil {
			return released, err
		}
		released++
	}
	if released > 0 {
		a.log.Debug("arena shrunk", "released", released, "blocks", len(a.blocks))
	}
	return released, nil
}

// Reset rewinds every block to empty without releasing it and moves the
// current block back to the first one. Everything handed out before becomes
// invalid and reads as zero. Peak is kept.
func (a *Arena) Reset() error {
	if err := a.guard.Enter(); err != nil {
		return err
	}
	defer a.guard.Exit()

	a.rewind(0, 0)
	if len(a.blocks) > 0 {
		a.current = 0
	}
	a.temps = nil
	a.epoch++
	return nil
}

// rewind zeroes and reclaims everything from offset off of block bi forward.
func (a *Arena) rewind(bi, off int) {
	if bi < 0 {
		bi, off = 0, 0
	}
	for i := bi; i < len(a.blocks); i++ {
		b := a.blocks[i]
		from := 0
		if i == bi {
			from = off
		}
		if used := b.Used(); used > from {
			clear(b.Bytes()[from:used])
			a.used -= used - from
			b.SetUsed(from)
		}
	}
}

// Len returns the total number of bytes currently allocated in the arena,
// alignment padding included.
func (a *Arena) Len() int {
	return a.used
}

// Cap returns the total capacity of the chain.
func (a *Arena) Cap() int {
	return a.capacity
}

// Peak returns the peak number of bytes that have been allocated in the arena.
// This value is not reset when Reset or Clear is called.
func (a *Arena) Peak() int {
	return a.peak
}

// BlockCount returns the number of blocks in the chain.
func (a *Arena) BlockCount() int {
	return len(a.blocks)
}

// Stats is a snapshot of arena usage.
type Stats struct {
	Blocks          int     `json:"blocks"`
	Capacity        int     `json:"capacity"`
	Used            int     `json:"used"`
	Peak            int     `json:"peak"`
	CurrentBlock    int     `json:"current_block"`
	OpenTemporaries int     `json:"open_temporaries"`
	Utilization     float64 `json:"utilization"`
}

// Stats returns a snapshot of arena usage.
func (a *Arena) Stats() Stats {
	s := Stats{
		Blocks:          len(a.blocks),
		Capacity:        a.capacity,
		Used:            a.used,
		Peak:            a.peak,
		CurrentBlock:    a.current,
		OpenTemporaries: len(a.temps),
	}
	if a.capacity > 0 {
		s.Utilization = float64(a.used) / float64(a.capacity)
	}
	return s
}
