// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"github.com/cockroachdb/errors"
)

// Stats is a snapshot of heap usage.
type Stats struct {
	Blocks      int `json:"blocks"`
	Capacity    int `json:"capacity"`
	Used        int `json:"used"`
	Live        int `json:"live"`
	LiveBytes   int `json:"live_bytes"`
	Free        int `json:"free"`
	FreeBytes   int `json:"free_bytes"`
	LargestFree int `json:"largest_free"`

	Allocs     int `json:"allocs"`
	Frees      int `json:"frees"`
	Splits     int `json:"splits"`
	MergesPrev int `json:"merges_prev"`
	MergesNext int `json:"merges_next"`
	Grows      int `json:"grows"`
	Trims      int `json:"trims"`
}

// Stats returns a snapshot of heap usage. Used includes headers of live
// allocations.
func (h *Heap) Stats() Stats {
	s := Stats{
		Blocks:     len(h.blocks),
		Allocs:     h.stats.allocs,
		Frees:      h.stats.frees,
		Splits:     h.stats.splits,
		MergesPrev: h.stats.mergesPrev,
		MergesNext: h.stats.mergesNext,
		Grows:      h.stats.grows,
		Trims:      h.stats.trims,
	}
	for _, hb := range h.blocks {
		s.Capacity += hb.blk.Cap()
		s.Used += hb.blk.Used()
		for e := hb.first; e != nilIndex; e = h.allocs[e].next {
			a := &h.allocs[e]
			if a.free {
				s.Free++
				s.FreeBytes += a.size
				s.LargestFree = max(s.LargestFree, a.size)
				continue
			}
			s.Live++
			s.LiveBytes += a.size
		}
	}
	return s
}

// BlockInfo describes one block of the heap.
type BlockInfo struct {
	ID          uint64 `json:"id"`
	Cap         int    `json:"cap"`
	Used        int    `json:"used"`
	Allocations int    `json:"allocations"`
	Live        int    `json:"live"`
}

// Blocks returns the heap's blocks in the order they were pushed.
func (h *Heap) Blocks() []BlockInfo {
	out := make([]BlockInfo, 0, len(h.blocks))
	for _, hb := range h.blocks {
		out = append(out, BlockInfo{
			ID:          hb.blk.ID(),
			Cap:         hb.blk.Cap(),
			Used:        hb.blk.Used(),
			Allocations: hb.count,
			Live:        hb.live,
		})
	}
	return out
}

// Validate walks every block and the free list and returns the first broken
// invariant it finds.
func (h *Heap) Validate() error {
	if err := h.guard.Enter(); err != nil {
		return err
	}
	defer h.guard.Exit()

	free := 0
	for _, hb := range h.blocks {
		n, err := h.validateBlock(hb)
		if err != nil {
			return err
		}
		free += n
	}

	listed := 0
	prev := nilIndex
	for i := h.freeHead; i != nilIndex; i = h.allocs[i].nextFree {
		a := &h.allocs[i]
		switch {
		case !a.free:
			return errors.AssertionFailedf("heap: live allocation %d on the free list", i)
		case a.block == nil:
			return errors.AssertionFailedf("heap: retired entry %d on the free list", i)
		case a.prevFree != prev:
			return errors.AssertionFailedf("heap: free list link of %d points back to %d, want %d", i, a.prevFree, prev)
		}
		prev = i
		listed++
		if listed > len(h.allocs) {
			return errors.AssertionFailedf("heap: free list cycle")
		}
	}
	if listed != free {
		return errors.AssertionFailedf("heap: %d free allocations in blocks, %d on the free list", free, listed)
	}
	return nil
}

// validateBlock checks one block's address list and returns its number of free
// allocations.
func (h *Heap) validateBlock(hb *heapBlock) (int, error) {
	id := hb.blk.ID()
	count, live, free, used, offset := 0, 0, 0, 0, 0
	prev, prevFree := nilIndex, false
	for e := hb.first; e != nilIndex; e = h.allocs[e].next {
		a := &h.allocs[e]
		switch {
		case a.block != hb:
			return 0, errors.AssertionFailedf("heap: allocation %d linked into block %d it does not belong to", e, id)
		case a.prev != prev:
			return 0, errors.AssertionFailedf("heap: block %d allocation %d points back to %d, want %d", id, e, a.prev, prev)
		case a.offset != offset:
			return 0, errors.AssertionFailedf("heap: block %d allocation %d at offset %d, want %d", id, e, a.offset, offset)
		case a.size <= 0 || a.size%Quantum != 0:
			return 0, errors.AssertionFailedf("heap: block %d allocation %d has size %d", id, e, a.size)
		case a.free && prevFree:
			return 0, errors.AssertionFailedf("heap: block %d has adjacent free allocations at offset %d", id, a.offset)
		}
		if a.free {
			free++
		} else {
			live++
			used += HeaderSize + a.size
			if a.signature == 0 {
				return 0, errors.AssertionFailedf("heap: live allocation %d is unstamped", e)
			}
		}
		offset += HeaderSize + a.size
		prevFree = a.free
		prev = e
		count++
		if count > len(h.allocs) {
			return 0, errors.AssertionFailedf("heap: block %d address list cycle", id)
		}
	}
	switch {
	case offset > hb.blk.Cap():
		return 0, errors.AssertionFailedf("heap: block %d allocations span %d bytes, capacity %d", id, offset, hb.blk.Cap())
	case count != hb.count:
		return 0, errors.AssertionFailedf("heap: block %d has %d allocations, counted %d", id, count, hb.count)
	case live != hb.live:
		return 0, errors.AssertionFailedf("heap: block %d has %d live allocations, counted %d", id, live, hb.live)
	case used != hb.blk.Used():
		return 0, errors.AssertionFailedf("heap: block %d uses %d bytes, recorded %d", id, used, hb.blk.Used())
	}
	return free, nil
}
