// SPDX-License-Identifier: Apache-2.0

// Package arena implements a block-chained bump allocator with scoped
// temporary memory.
//
// # Overview
//
// An Arena hands out aligned regions from a chain of blocks obtained through a
// block.Provider. It is optimized for bulk, short-lived allocations that are
// released together:
//
//	a, err := arena.New(arena.WithMinBlockSize(1 << 20))
//	if err != nil {
//	    return err
//	}
//	defer a.Clear()
//
//	buf, err := a.Allocate(256, 16)
//
// # Temporary Memory
//
// BeginTemporaryMemory saves the arena's cursor. End zeroes and reclaims every
// byte allocated since, across as many blocks as were touched; Keep commits
// them instead. Tokens nest and must be closed in LIFO order:
//
//	tmp, err := a.BeginTemporaryMemory()
//	if err != nil {
//	    return err
//	}
//	defer tmp.End()
//
// # Typed Helpers
//
// Allocate, AllocateSlice, MakeSlice and SliceAppend place values of
// pointer-free types in arena memory. Buffer is an io.Writer backed by an
// arena, and Pool recycles arenas per use case.
//
// # Related Packages
//
//   - github.com/wundergraph/go-memkit/block: platform blocks and the registry
//   - github.com/wundergraph/go-memkit/heap: general purpose allocator with
//     free-list coalescing and reference counting
//   - github.com/wundergraph/go-memkit/handle: generational handle pools
package arena
