// SPDX-License-Identifier: Apache-2.0

// Package block provides the platform memory blocks that arenas and heaps are
// built from.
//
// # Overview
//
// A Block is one contiguous region obtained from a Source. A Provider sizes
// requests to the platform granularity, reserves a small fixed overhead at the
// front of every block for container bookkeeping, and records each outstanding
// block in a Registry:
//
//	p := block.NewProvider(block.WithSource(block.MmapSource{}))
//	b, err := p.Allocate(block.KindArena, 1<<20)
//	if err != nil {
//	    return err
//	}
//	defer p.Deallocate(b)
//
// # Granularity
//
// Blocks are rounded up to multiples of Granularity (64 KiB) including the
// Overhead (64 bytes), so a request for 1 byte yields a block with
// 65472 usable bytes.
//
// # Thread Safety
//
// Blocks are owned by exactly one arena or heap, which is the only code that
// may change the used counter. The Registry is shared process-wide and is safe
// for concurrent use; it only reads blocks to produce diagnostics.
package block
