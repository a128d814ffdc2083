// SPDX-License-Identifier: Apache-2.0

package block

import "sync"

// Info is a point-in-time description of a registered block.
type Info struct {
	ID   uint64 `json:"id"`
	Kind Kind   `json:"kind"`
	Cap  int    `json:"cap"`
	Used int    `json:"used"`
}

// Registry is a mutex-guarded doubly linked list of outstanding blocks.
// It exists for diagnostics and teardown and is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	head  *Block
	tail  *Block
	count int
	bytes int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) add(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.prev = r.tail
	b.next = nil
	if r.tail != nil {
		r.tail.next = b
	} else {
		r.head = b
	}
	r.tail = b
	r.count++
	r.bytes += len(b.raw)
}

func (r *Registry) remove(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.prev != nil {
		b.prev.next = b.next
	} else {
		r.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		r.tail = b.prev
	}
	b.prev, b.next = nil, nil
	r.count--
	r.bytes -= len(b.raw)
}

func (r *Registry) owned(p *Provider) []*Block {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Block
	for b := r.head; b != nil; b = b.next {
		if b.provider == p {
			out = append(out, b)
		}
	}
	return out
}

// Count returns the number of outstanding blocks.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Bytes returns the total size of outstanding blocks, overhead included.
func (r *Registry) Bytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Used returns the sum of the used counters of outstanding blocks.
func (r *Registry) Used() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for b := r.head; b != nil; b = b.next {
		total += b.Used()
	}
	return total
}

// Each calls fn for every outstanding block in allocation order until fn
// returns false. fn must not call back into the registry.
func (r *Registry) Each(fn func(Info) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for b := r.head; b != nil; b = b.next {
		if !fn(b.info()) {
			return
		}
	}
}

// Snapshot returns the outstanding blocks in allocation order.
func (r *Registry) Snapshot() []Info {
	out := make([]Info, 0, r.Count())
	r.Each(func(i Info) bool {
		out = append(out, i)
		return true
	})
	return out
}
