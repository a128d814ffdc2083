// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"runtime"
	"sync"
	"weak"

	"github.com/wundergraph/go-memkit/block"
)

// sizeWindow is the number of releases averaged per key before the running
// total is rescaled.
const sizeWindow = 50

// Pool recycles arenas per use case. Each key learns the average peak of the
// arenas released under it, and arenas created for that key start with a block
// of that size so they rarely need to grow.
//
// Idle arenas are held through weak pointers, so the GC may claim them when it
// needs to; a cleanup then returns their blocks to the provider. An arena is
// handed to one user at a time, the Pool itself is safe for concurrent use.
type Pool struct {
	pool     []weak.Pointer[PoolItem]
	sizes    map[uint64]*poolItemSize
	provider *block.Provider
	mu       sync.Mutex
}

type poolItemSize struct {
	count      int
	totalBytes int
}

// PoolItem wraps an Arena handed out by the pool.
type PoolItem struct {
	Arena *Arena
	Key   uint64
}

// NewArenaPool creates a new Pool whose arenas allocate from provider.
// A nil provider selects block.DefaultProvider.
func NewArenaPool(provider *block.Provider) *Pool {
	if provider == nil {
		provider = block.DefaultProvider
	}
	return &Pool{
		sizes:    make(map[uint64]*poolItemSize),
		provider: provider,
	}
}

// Acquire gets an arena from the pool or creates a new one if none are available.
// The key identifies the use case whose learned size seeds new arenas.
func (p *Pool) Acquire(key uint64) (*PoolItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pool) > 0 {
		last := len(p.pool) - 1
		wp := p.pool[last]
		p.pool = p.pool[:last]

		if v := wp.Value(); v != nil {
			v.Key = key
			return v, nil
		}
	}

	a, err := New(
		WithProvider(p.provider),
		WithMinBlockSize(p.arenaSize(key)),
		WithInitialBlockCount(1),
	)
	if err != nil {
		return nil, err
	}
	item := &PoolItem{Arena: a, Key: key}
	runtime.AddCleanup(item, func(a *Arena) { _ = a.Clear() }, a)
	return item, nil
}

// Release resets the item's arena and returns it to the pool. The arena's peak
// is recorded against the item's key.
func (p *Pool) Release(item *PoolItem) error {
	return p.ReleaseMany([]*PoolItem{item})
}

// ReleaseMany releases several items under one lock.
func (p *Pool) ReleaseMany(items []*PoolItem) error {
	for _, item := range items {
		if err := item.Arena.Reset(); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range items {
		p.record(item.Key, item.Arena.Peak())
		item.Key = 0
		p.pool = append(p.pool, weak.Make(item))
	}
	return nil
}

func (p *Pool) record(key uint64, peak int) {
	size, ok := p.sizes[key]
	if !ok {
		p.sizes[key] = &poolItemSize{count: 1, totalBytes: peak}
		return
	}
	if size.count == sizeWindow {
		size.count = 1
		size.totalBytes /= sizeWindow
	}
	size.count++
	size.totalBytes += peak
}

// arenaSize returns the block size for a new arena under key, DefaultMinBlockSize
// when nothing was recorded yet.
func (p *Pool) arenaSize(key uint64) int {
	if size, ok := p.sizes[key]; ok && size.count > 0 {
		return max(size.totalBytes/size.count, DefaultMinBlockSize)
	}
	return DefaultMinBlockSize
}

// Idle returns the number of weak entries currently held by the pool.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pool)
}
