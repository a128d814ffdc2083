// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/wundergraph/go-memkit/block"
)

// mockAllocator simply allocates memory using Go's built-in make function.
type mockAllocator struct{}

func (m *mockAllocator) Alloc(size, _ uintptr) unsafe.Pointer {
	return unsafe.Pointer(&make([]byte, size)[0])
}

func TestSliceAppendWithAllocator(t *testing.T) {
	a := &mockAllocator{}

	s := AllocateSlice[int](a, 3, 3)
	s[0] = 1
	s[1] = 2
	s[2] = 3

	result := SliceAppend[int](a, s, 4, 5)
	require.Equal(t, []int{1, 2, 3, 4, 5}, result)
	require.Equal(t, 6, cap(result))
}

func TestSliceAppendWithArena(t *testing.T) {
	a := newTestArena(t)

	var s []uint32
	for i := uint32(0); i < 1000; i++ {
		s = SliceAppend(a, s, i)
	}
	require.Len(t, s, 1000)
	for i, v := range s {
		require.Equal(t, uint32(i), v)
	}
	require.True(t, inArena(a, unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), 4)))
}

func TestSliceAppendNilAllocator(t *testing.T) {
	require.Equal(t, []int{1, 2}, SliceAppend[int](nil, nil, 1, 2))
}

func TestMakeSlice(t *testing.T) {
	a := newTestArena(t)

	s, err := MakeSlice[uint64](a, 4, 16)
	require.NoError(t, err)
	require.Len(t, s, 4)
	require.Equal(t, 16, cap(s))
	require.Zero(t, uintptr(unsafe.Pointer(&s[0]))%unsafe.Alignof(uint64(0)))
	require.Equal(t, 128, a.Len())

	empty, err := MakeSlice[uint64](a, 0, 0)
	require.NoError(t, err)
	require.Empty(t, empty)

	p := block.NewProvider(block.WithRegistry(block.NewRegistry()), block.WithSource(failingSource{}))
	failing, err := New(WithProvider(p))
	require.NoError(t, err)
	_, err = MakeSlice[uint64](failing, 1, 1)
	require.True(t, errors.Is(err, block.ErrPlatform))
}

func TestNextCap(t *testing.T) {
	require.Equal(t, 5, nextCap(0, 5))
	require.Equal(t, 8, nextCap(4, 5))
	require.Equal(t, 320, nextCap(256, 257))
}
