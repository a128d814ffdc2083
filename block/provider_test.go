// SPDX-License-Identifier: Apache-2.0

package block

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/wundergraph/go-memkit/internal/logger"
)

type failingSource struct{}

func (failingSource) Acquire(int) ([]byte, error) { return nil, errors.New("out of pages") }
func (failingSource) Release([]byte) error        { return nil }

func newTestProvider(opts ...Option) *Provider {
	return NewProvider(append([]Option{WithRegistry(NewRegistry())}, opts...)...)
}

func TestProviderAllocateRoundsToGranularity(t *testing.T) {
	p := newTestProvider()

	b, err := p.Allocate(KindArena, 1)
	require.NoError(t, err)
	require.Equal(t, Granularity-Overhead, b.Cap())
	require.Equal(t, 0, b.Used())
	require.Equal(t, KindArena, b.Kind())

	b2, err := p.Allocate(KindHeap, Granularity)
	require.NoError(t, err)
	require.Equal(t, 2*Granularity-Overhead, b2.Cap())
	require.NotEqual(t, b.ID(), b2.ID())

	require.Equal(t, 2, p.Registry().Count())
	require.Equal(t, 3*Granularity, p.Registry().Bytes())
}

func TestProviderBlockSize(t *testing.T) {
	p := newTestProvider(WithGranularity(4096))
	require.Equal(t, 4096-Overhead, p.BlockSize(0))
	require.Equal(t, 4096-Overhead, p.BlockSize(4096-Overhead))
	require.Equal(t, 8192-Overhead, p.BlockSize(4096-Overhead+1))
}

func TestProviderBlocksAreZeroed(t *testing.T) {
	p := newTestProvider(WithGranularity(4096))
	b, err := p.Allocate(KindArena, 100)
	require.NoError(t, err)
	for _, c := range b.Bytes() {
		require.Zero(t, c)
	}
}

func TestProviderDeallocate(t *testing.T) {
	p := newTestProvider()
	b, err := p.Allocate(KindHeap, 10)
	require.NoError(t, err)

	require.NoError(t, p.Deallocate(b))
	require.True(t, b.Released())
	require.Nil(t, b.Bytes())
	require.Equal(t, 0, p.Registry().Count())
	require.Equal(t, 0, p.Registry().Bytes())

	err = p.Deallocate(b)
	require.True(t, errors.Is(err, ErrReleased))

	other := newTestProvider()
	b2, err := other.Allocate(KindHeap, 10)
	require.NoError(t, err)
	require.ErrorIs(t, p.Deallocate(b2), ErrForeignBlock)
}

func TestProviderPlatformFailure(t *testing.T) {
	p := newTestProvider(WithSource(failingSource{}))
	b, err := p.Allocate(KindArena, 10)
	require.Nil(t, b)
	require.True(t, errors.Is(err, ErrPlatform))
	require.Contains(t, err.Error(), "out of pages")
	require.Equal(t, 0, p.Registry().Count())
}

func TestProviderInvalidSize(t *testing.T) {
	p := newTestProvider()
	_, err := p.Allocate(KindArena, -1)
	require.True(t, errors.Is(err, ErrInvalidSize))
}

func TestProviderTeardown(t *testing.T) {
	reg := NewRegistry()
	p1 := NewProvider(WithRegistry(reg))
	p2 := NewProvider(WithRegistry(reg))

	for i := 0; i < 3; i++ {
		_, err := p1.Allocate(KindArena, 10)
		require.NoError(t, err)
	}
	_, err := p2.Allocate(KindHeap, 10)
	require.NoError(t, err)
	require.Equal(t, 4, reg.Count())

	require.NoError(t, p1.Teardown())
	require.Equal(t, 1, reg.Count())
	require.Equal(t, KindHeap, reg.Snapshot()[0].Kind)
}

func TestProviderFollowsLoggerInit(t *testing.T) {
	p := newTestProvider()

	prev := logger.L
	t.Cleanup(func() { logger.L = prev })
	var out bytes.Buffer
	logger.Init(logger.Options{Enabled: true, Output: &out, Level: slog.LevelDebug})

	b, err := p.Allocate(KindArena, 1)
	require.NoError(t, err)
	require.NoError(t, p.Deallocate(b))
	require.Contains(t, out.String(), "block allocated")
	require.Contains(t, out.String(), "block released")
}

func TestMmapSource(t *testing.T) {
	p := newTestProvider(WithSource(MmapSource{}))
	b, err := p.Allocate(KindArena, 1000)
	require.NoError(t, err)

	buf := b.Bytes()
	buf[0] = 1
	buf[len(buf)-1] = 2
	b.SetUsed(len(buf))
	require.Equal(t, 0, b.Remaining())

	require.NoError(t, p.Deallocate(b))
}

func TestSourceByName(t *testing.T) {
	s, err := SourceByName("go")
	require.NoError(t, err)
	require.IsType(t, GoSource{}, s)

	s, err = SourceByName("mmap")
	require.NoError(t, err)
	require.IsType(t, MmapSource{}, s)

	_, err = SourceByName("sbrk")
	require.True(t, errors.Is(err, ErrUnknownSource))
}

func TestBlockSetUsedOutOfRangePanics(t *testing.T) {
	p := newTestProvider(WithGranularity(4096))
	b, err := p.Allocate(KindArena, 0)
	require.NoError(t, err)
	require.Panics(t, func() { b.SetUsed(b.Cap() + 1) })
}
