// SPDX-License-Identifier: Apache-2.0

package block

import "github.com/cockroachdb/errors"

var (
	// ErrPlatform indicates that the platform source could not provide memory.
	ErrPlatform = errors.New("block: platform allocation failed")

	// ErrInvalidSize indicates a negative or overflowing block size request.
	ErrInvalidSize = errors.New("block: invalid size")

	// ErrForeignBlock indicates a block handed to a provider that did not allocate it.
	ErrForeignBlock = errors.New("block: block belongs to another provider")

	// ErrReleased indicates a block that was already returned to its source.
	ErrReleased = errors.New("block: block already released")

	// ErrUnknownSource indicates an unrecognised source name.
	ErrUnknownSource = errors.New("block: unknown source")
)
