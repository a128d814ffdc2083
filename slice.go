// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

const growThreshold = 256

// AllocateSlice creates a slice of type T with a given length and capacity,
// using the provided Allocator for memory allocation.
// If the allocator is non-nil and can serve the request, the backing array lives
// in its memory. Otherwise, it returns a slice using Go's built-in make function.
//
// T must not contain Go pointers.
func AllocateSlice[T any](a Allocator, len, cap int) []T {
	if a != nil && cap > 0 {
		var x T
		if ptr := (*T)(a.Alloc(unsafe.Sizeof(x)*uintptr(cap), unsafe.Alignof(x))); ptr != nil {
			return unsafe.Slice(ptr, cap)[:len]
		}
	}
	return make([]T, len, cap)
}

// MakeSlice is AllocateSlice for an Arena that reports allocation failure
// instead of falling back to the Go heap.
func MakeSlice[T any](a *Arena, len, cap int) ([]T, error) {
	var x T
	buf, err := a.Allocate(int(unsafe.Sizeof(x))*cap, int(unsafe.Alignof(x)))
	if err != nil {
		return nil, err
	}
	if cap == 0 {
		return []T{}, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), cap)[:len], nil
}

// SliceAppend appends elements to a slice of type T using a provided Allocator
// for memory allocation if the slice has to grow.
func SliceAppend[T any](a Allocator, s []T, data ...T) []T {
	if a == nil {
		return append(s, data...)
	}
	if need := len(s) + len(data); need > cap(s) {
		grown := AllocateSlice[T](a, len(s), nextCap(cap(s), need))
		copy(grown, s)
		s = grown
	}
	return append(s, data...)
}

// nextCap doubles small capacities and grows large ones by a quarter until
// need fits.
func nextCap(c, need int) int {
	if c == 0 {
		return need
	}
	for c < need {
		if c < growThreshold {
			c *= 2
		} else {
			c += c / 4
		}
	}
	return c
}
