// SPDX-License-Identifier: Apache-2.0

// Package heap provides a general purpose allocator for allocations with
// independent lifetimes.
//
// # Overview
//
// A Heap manages its own chain of blocks. Inside each block, allocations are
// laid out back to back, each charged HeaderSize bytes of bookkeeping plus a
// payload rounded up to Quantum bytes. Allocation headers are kept in a side
// table rather than in the block itself; allocations are linked in address
// order within their block, and free allocations are additionally linked in
// one heap-wide free list.
//
// # Allocation
//
// Allocate takes the first free allocation large enough for the request. If
// the remainder can hold another header and at least MinSplit payload bytes,
// it is split off as a new free allocation directly after the chosen one.
// When nothing fits, a block sized for the request is pushed.
//
//	h, err := heap.New()
//	if err != nil {
//	    return err
//	}
//	ref, err := h.AllocateZeroed(300)
//	if err != nil {
//	    return err
//	}
//	buf, _ := h.Bytes(ref)
//
// # Freeing
//
// Free merges the allocation into a free predecessor, or otherwise pushes it
// onto the free list, and then absorbs a free successor. A block therefore
// never holds two adjacent free allocations.
//
// # Reference Counting
//
// AddRef and ReleaseRef maintain a 16-bit saturating count per allocation.
// The release that brings it to zero frees the allocation; an allocation with a
// non-zero count cannot be freed directly. A count that reaches MaxRefs stays
// pinned.
//
// # Refs
//
// A Ref identifies an allocation by side-table index and a signature stamped
// when the allocation was made. Stale refs and double frees are reported as
// errors instead of corrupting the lists.
//
// # Thread Safety
//
// A Heap is owned by one goroutine at a time; overlapping calls fail with
// ErrConcurrentUse.
package heap
