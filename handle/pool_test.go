// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"testing"

	"github.com/stretchr/testify/require"

	arena "github.com/wundergraph/go-memkit"
	"github.com/wundergraph/go-memkit/block"
)

func newTestPool(t *testing.T, elementSize, capacity int, opts ...Option) *Pool {
	t.Helper()
	p, err := New(elementSize, capacity, 9, opts...)
	require.NoError(t, err)
	return p
}

func TestPoolScenario(t *testing.T) {
	p := newTestPool(t, 4, 4)

	a, err := p.Insert([]byte("AAAA"))
	require.NoError(t, err)
	b, err := p.Insert([]byte("BBBB"))
	require.NoError(t, err)
	c, err := p.Insert([]byte("CCCC"))
	require.NoError(t, err)
	d, err := p.Insert([]byte("DDDD"))
	require.NoError(t, err)
	require.Equal(t, 4, p.Len())
	require.True(t, p.Full())

	h, err := p.Insert([]byte("XXXX"))
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, Invalid, h)
	require.Equal(t, 4, p.Len())

	require.True(t, p.Erase(b))
	e, err := p.Insert([]byte("EEEE"))
	require.NoError(t, err)
	require.Equal(t, b.Index(), e.Index())
	require.Equal(t, b.Generation()+1, e.Generation())

	require.False(t, p.Has(b))
	require.Nil(t, p.At(b))
	require.Equal(t, []byte("EEEE"), p.At(e))
	for h, want := range map[Handle]string{a: "AAAA", c: "CCCC", d: "DDDD"} {
		require.Equal(t, []byte(want), p.At(h))
	}
}

func TestPoolFullInsertDoesNotMutate(t *testing.T) {
	p := newTestPool(t, 8, 2)
	_, err := p.Insert([]byte{1})
	require.NoError(t, err)
	_, err = p.Insert([]byte{2})
	require.NoError(t, err)

	slots := append([]slot(nil), p.slots...)
	head, buf := p.head, append([]byte(nil), p.buf...)

	_, err = p.Insert([]byte{3})
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, slots, p.slots)
	require.Equal(t, head, p.head)
	require.Equal(t, buf, p.buf)
}

func TestPoolGenerationCycles(t *testing.T) {
	p := newTestPool(t, 1, 1)

	var first Handle
	for k := 1; k <= 3*Generations; k++ {
		h, err := p.Insert(nil)
		require.NoError(t, err)
		require.Equal(t, uint8(k%Generations), h.Generation(), "insert %d", k)
		if k == 1 {
			first = h
		} else if k%Generations != 1 {
			require.False(t, p.Has(first), "insert %d", k)
		}
		require.True(t, p.Erase(h))
		require.False(t, p.Erase(h))
	}
}

func TestPoolStaleHandle(t *testing.T) {
	p := newTestPool(t, 4, 4)
	old, err := p.Insert([]byte{1})
	require.NoError(t, err)
	require.True(t, p.Erase(old))

	fresh, err := p.Insert([]byte{2})
	require.NoError(t, err)
	require.Equal(t, old.Index(), fresh.Index())
	require.False(t, p.Has(old))
	require.False(t, p.Erase(old))
	require.True(t, p.Has(fresh))
}

func TestPoolForeignHandles(t *testing.T) {
	p := newTestPool(t, 4, 4)
	other, err := New(4, 4, 10)
	require.NoError(t, err)

	h, err := other.Insert(nil)
	require.NoError(t, err)
	_, err = p.Insert(nil)
	require.NoError(t, err)

	// same index and generation, different type id
	require.False(t, p.Has(h))
	require.False(t, p.Has(Invalid))
	require.False(t, p.Has(makeHandle(100, 1, 9)))
	require.Nil(t, p.At(Invalid))
	require.False(t, p.Erase(Invalid))
}

func TestPoolInsertZeroesSlot(t *testing.T) {
	p := newTestPool(t, 4, 1)
	h, err := p.Insert([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.True(t, p.Erase(h))

	h, err = p.Insert([]byte{9})
	require.NoError(t, err)
	require.Equal(t, []byte{9, 0, 0, 0}, p.At(h))

	_, err = p.Insert(make([]byte, 5))
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestPoolClear(t *testing.T) {
	p := newTestPool(t, 4, 4)
	var hs []Handle
	for range 3 {
		h, err := p.Insert([]byte{7})
		require.NoError(t, err)
		hs = append(hs, h)
	}
	gens := make([]uint8, len(p.slots))
	for i, s := range p.slots {
		gens[i] = s.generation
	}

	p.Clear()
	require.Equal(t, 0, p.Len())
	for _, h := range hs {
		require.False(t, p.Has(h))
	}
	for i, s := range p.slots {
		require.Equal(t, gens[i], s.generation)
	}

	for range 4 {
		h, err := p.Insert(nil)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 0, 0}, p.At(h))
	}
	require.True(t, p.Full())
}

func TestPoolReset(t *testing.T) {
	p := newTestPool(t, 4, 3)
	h, err := p.Insert([]byte{1})
	require.NoError(t, err)
	_, err = p.Insert([]byte{2})
	require.NoError(t, err)

	p.Reset()
	require.Equal(t, 0, p.Len())
	require.False(t, p.Has(h))

	// the free list runs in index order again
	for i := range 3 {
		n, err := p.Insert(nil)
		require.NoError(t, err)
		require.Equal(t, i, n.Index())
	}
	n, err := p.Insert(nil)
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, Invalid, n)
}

func TestPoolWithBuffer(t *testing.T) {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = 0xEE
	}

	_, err := New(8, 5, 1, WithBuffer(buf))
	require.ErrorIs(t, err, ErrBufferTooSmall)

	p, err := New(8, 4, 1, WithBuffer(buf))
	require.NoError(t, err)
	require.Equal(t, make([]byte, 32), buf)

	h, err := p.Insert([]byte("pooled"))
	require.NoError(t, err)
	require.Equal(t, []byte("pooled"), buf[h.Index()*8:h.Index()*8+6])

	require.NoError(t, p.Close())
	require.Len(t, buf, 32)
	require.Equal(t, []byte("pooled"), buf[h.Index()*8:h.Index()*8+6])
}

func TestPoolOverArenaMemory(t *testing.T) {
	a, err := arena.New(arena.WithProvider(block.NewProvider(block.WithRegistry(block.NewRegistry()))))
	require.NoError(t, err)
	buf, err := a.Allocate(16*32, 8)
	require.NoError(t, err)

	p, err := New(32, 16, 2, WithBuffer(buf))
	require.NoError(t, err)
	h, err := p.Insert([]byte("in the arena"))
	require.NoError(t, err)
	require.Equal(t, []byte("in the arena"), p.At(h)[:12])
	require.NoError(t, a.Clear())
}

func TestPoolClose(t *testing.T) {
	p := newTestPool(t, 4, 2)
	h, err := p.Insert(nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Close(), ErrClosed)

	_, err = p.Insert(nil)
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, p.Has(h))
	require.Nil(t, p.At(h))
	require.False(t, p.Erase(h))
	require.Equal(t, 0, p.Cap())
}

func TestPoolInvalidArguments(t *testing.T) {
	_, err := New(0, 4, 0)
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(4, 0, 0)
	require.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = New(4, MaxCapacity+1, 0)
	require.ErrorIs(t, err, ErrInvalidCapacity)

	p, err := New(1, MaxCapacity, 0)
	require.NoError(t, err)
	for range MaxCapacity {
		_, err := p.Insert(nil)
		require.NoError(t, err)
	}
	_, err = p.Insert(nil)
	require.ErrorIs(t, err, ErrFull)
}

func TestPoolAccessors(t *testing.T) {
	p := newTestPool(t, 12, 6)
	require.Equal(t, 6, p.Cap())
	require.Equal(t, 12, p.ElementSize())
	require.Equal(t, uint8(9), p.TypeID())

	h, err := p.Insert(nil)
	require.NoError(t, err)
	require.Equal(t, uint8(9), h.TypeID())
	require.Equal(t, 1, p.Len())
}

func BenchmarkPoolInsertErase(b *testing.B) {
	p, err := New(64, 1024, 1)
	require.NoError(b, err)
	hs := make([]Handle, 512)

	b.ReportAllocs()
	for b.Loop() {
		for i := range hs {
			hs[i], _ = p.Insert(nil)
		}
		for _, h := range hs {
			p.Erase(h)
		}
	}
}
