// SPDX-License-Identifier: Apache-2.0

package heap

import (
	"github.com/cockroachdb/errors"

	"github.com/wundergraph/go-memkit/internal/owner"
)

var (
	// ErrInvalidSize indicates a negative allocation or block size.
	ErrInvalidSize = errors.New("heap: invalid size")

	// ErrTooLarge indicates a request larger than MaxAllocation.
	ErrTooLarge = errors.New("heap: allocation too large")

	// ErrInvalidRef indicates a zero, out-of-range or stale ref.
	ErrInvalidRef = errors.New("heap: invalid ref")

	// ErrForeignRef indicates a ref issued by another heap.
	ErrForeignRef = errors.New("heap: ref belongs to another heap")

	// ErrDoubleFree indicates a Free of an allocation that is already free.
	ErrDoubleFree = errors.New("heap: double free")

	// ErrUseAfterFree indicates access through a ref whose allocation was freed.
	ErrUseAfterFree = errors.New("heap: use after free")

	// ErrReferenced indicates a Free of an allocation with a non-zero reference count.
	ErrReferenced = errors.New("heap: allocation is still referenced")

	// ErrNotReferenced indicates a ReleaseRef on an allocation with no references.
	ErrNotReferenced = errors.New("heap: allocation has no references")

	// ErrBlockInUse indicates RemoveBlock on a block that holds live allocations.
	ErrBlockInUse = errors.New("heap: block holds live allocations")

	// ErrForeignBlock indicates a block id that is not part of this heap.
	ErrForeignBlock = errors.New("heap: block is not part of this heap")

	// ErrConcurrentUse indicates two goroutines inside the same heap.
	ErrConcurrentUse = owner.ErrConcurrentUse
)
