// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type entity struct {
	name string
	hp   int
}

func TestStoreInsertGet(t *testing.T) {
	s, err := NewStore[entity](3, 4)
	require.NoError(t, err)

	h, err := s.Insert(entity{name: "orc", hp: 10})
	require.NoError(t, err)
	require.Equal(t, uint8(4), h.TypeID())

	v, ok := s.Get(h)
	require.True(t, ok)
	require.Equal(t, "orc", v.name)

	s.Ptr(h).hp -= 3
	v, _ = s.Get(h)
	require.Equal(t, 7, v.hp)
}

func TestStoreStaleAfterErase(t *testing.T) {
	s, err := NewStore[*entity](2, 1)
	require.NoError(t, err)

	old, err := s.Insert(&entity{name: "a"})
	require.NoError(t, err)
	require.True(t, s.Erase(old))
	require.Nil(t, s.items[old.Index()])

	fresh, err := s.Insert(&entity{name: "b"})
	require.NoError(t, err)
	require.Equal(t, old.Index(), fresh.Index())

	_, ok := s.Get(old)
	require.False(t, ok)
	require.Nil(t, s.Ptr(old))
	require.False(t, s.Erase(old))
	require.True(t, s.Has(fresh))
}

func TestStoreFull(t *testing.T) {
	s, err := NewStore[int](2, 0)
	require.NoError(t, err)
	_, err = s.Insert(1)
	require.NoError(t, err)
	_, err = s.Insert(2)
	require.NoError(t, err)

	h, err := s.Insert(3)
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, Invalid, h)
	require.Equal(t, 2, s.Len())
	require.Equal(t, 2, s.Cap())
}

func TestStoreAll(t *testing.T) {
	s, err := NewStore[string](4, 2)
	require.NoError(t, err)

	var hs []Handle
	for _, v := range []string{"a", "b", "c"} {
		h, err := s.Insert(v)
		require.NoError(t, err)
		hs = append(hs, h)
	}
	require.True(t, s.Erase(hs[1]))

	var got []string
	for h, v := range s.All() {
		require.True(t, s.Has(h))
		got = append(got, *v)
	}
	require.Equal(t, []string{"a", "c"}, got)

	n := 0
	for range s.All() {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestStoreClear(t *testing.T) {
	s, err := NewStore[[]byte](3, 0)
	require.NoError(t, err)
	h, err := s.Insert([]byte("x"))
	require.NoError(t, err)

	s.Clear()
	require.Equal(t, 0, s.Len())
	require.False(t, s.Has(h))
	require.Nil(t, s.items[h.Index()])

	fresh, err := s.Insert(nil)
	require.NoError(t, err)
	require.Equal(t, h.Generation()+1, fresh.Generation())
}

func TestStoreInvalidCapacity(t *testing.T) {
	_, err := NewStore[int](0, 0)
	require.ErrorIs(t, err, ErrInvalidCapacity)
}
