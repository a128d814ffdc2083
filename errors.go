// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"github.com/cockroachdb/errors"

	"github.com/wundergraph/go-memkit/internal/owner"
)

var (
	// ErrInvalidSize indicates a negative allocation or block size.
	ErrInvalidSize = errors.New("arena: invalid size")

	// ErrBadAlignment indicates an alignment that is not a positive power of two.
	ErrBadAlignment = errors.New("arena: alignment must be a power of two")

	// ErrTemporaryOrder indicates a temporary memory token closed out of LIFO order.
	ErrTemporaryOrder = errors.New("arena: temporary memory closed out of order")

	// ErrTemporaryStale indicates a token whose arena was cleared or reset while it was open.
	ErrTemporaryStale = errors.New("arena: temporary memory outlived its arena state")

	// ErrConcurrentUse indicates two goroutines inside the same arena.
	ErrConcurrentUse = owner.ErrConcurrentUse
)
