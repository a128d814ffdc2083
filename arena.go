// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"unsafe"
)

// Allocator is the minimal allocation contract the typed helpers build on.
// *Arena implements it.
type Allocator interface {
	// Alloc allocates memory of the given size and returns a pointer to it.
	// The alignment parameter specifies the alignment of the allocated memory.
	// It returns nil when the memory cannot be provided.
	Alloc(size, alignment uintptr) unsafe.Pointer
}

// Allocate allocates memory for a value of type T using the provided Allocator.
// If the allocator is non-nil, it returns a *T pointer with memory allocated from it.
// If passed allocator is nil, or it cannot serve the request, it allocates memory
// using Go's built-in new function.
//
// T must not contain Go pointers: arena memory is not scanned by the garbage collector.
func Allocate[T any](a Allocator) *T {
	if a != nil {
		var x T
		if ptr := a.Alloc(unsafe.Sizeof(x), unsafe.Alignof(x)); ptr != nil {
			return (*T)(ptr)
		}
	}
	return new(T)
}
