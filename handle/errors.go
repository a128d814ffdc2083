// SPDX-License-Identifier: Apache-2.0

package handle

import "github.com/cockroachdb/errors"

var (
	// ErrFull is returned by Insert when every slot is live.
	ErrFull = errors.New("handle: pool is full")

	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("handle: pool is closed")

	// ErrInvalidCapacity indicates a capacity outside [1, MaxCapacity].
	ErrInvalidCapacity = errors.New("handle: invalid capacity")

	// ErrInvalidSize indicates a non-positive element size or an insert larger
	// than the element size.
	ErrInvalidSize = errors.New("handle: invalid element size")

	// ErrBufferTooSmall indicates a caller supplied buffer that cannot hold
	// capacity elements.
	ErrBufferTooSmall = errors.New("handle: buffer too small")
)
