// SPDX-License-Identifier: Apache-2.0

package block

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Kind identifies the container type that owns a block.
type Kind uint8

const (
	KindArena Kind = iota + 1
	KindHeap
)

func (k Kind) String() string {
	switch k {
	case KindArena:
		return "arena"
	case KindHeap:
		return "heap"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON diagnostics.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Block is a contiguous region of platform memory owned by one arena or heap.
type Block struct {
	raw  []byte // full region as returned by the source, overhead included
	data []byte // usable region after the overhead
	used atomic.Int64
	kind Kind
	id   uint64

	provider *Provider

	// registry links, guarded by Registry.mu
	prev, next *Block
}

// ID returns the provider-unique identifier of the block.
func (b *Block) ID() uint64 { return b.id }

// Kind returns the container kind the block was allocated for.
func (b *Block) Kind() Kind { return b.kind }

// Bytes returns the usable region of the block.
func (b *Block) Bytes() []byte { return b.data }

// Cap returns the usable capacity in bytes.
func (b *Block) Cap() int { return len(b.data) }

// Used returns the number of bytes the owning container has claimed.
func (b *Block) Used() int { return int(b.used.Load()) }

// Remaining returns Cap minus Used.
func (b *Block) Remaining() int { return b.Cap() - b.Used() }

// SetUsed updates the used counter. Only the owning container may call it.
func (b *Block) SetUsed(n int) {
	if n < 0 || n > len(b.data) {
		panic(errors.AssertionFailedf("block %d: used %d outside [0, %d]", b.id, n, len(b.data)))
	}
	b.used.Store(int64(n))
}

// Addr returns the address of the first usable byte.
func (b *Block) Addr() uintptr {
	if len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
}

// Released reports whether the block has been returned to its source.
func (b *Block) Released() bool { return b.raw == nil }

func (b *Block) info() Info {
	return Info{ID: b.id, Kind: b.kind, Cap: b.Cap(), Used: b.Used()}
}
