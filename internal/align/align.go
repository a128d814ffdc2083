// SPDX-License-Identifier: Apache-2.0

// Package align holds the alignment arithmetic shared by the allocators.
package align

import "golang.org/x/exp/constraints"

// IsPow2 reports whether n is a positive power of two.
func IsPow2[T constraints.Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// Up rounds n up to the next multiple of a. a must be a power of two.
func Up[T constraints.Integer](n, a T) T {
	return (n + a - 1) &^ (a - 1)
}

// Down rounds n down to a multiple of a. a must be a power of two.
func Down[T constraints.Integer](n, a T) T {
	return n &^ (a - 1)
}

// UpTo rounds n up to the next multiple of m, which need not be a power of two.
func UpTo[T constraints.Integer](n, m T) T {
	if m <= 0 {
		return n
	}
	if r := n % m; r != 0 {
		return n + m - r
	}
	return n
}

// Padding returns the number of bytes needed to move addr up to a multiple of a.
func Padding(addr, a uintptr) uintptr {
	return Up(addr, a) - addr
}
