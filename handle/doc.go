// SPDX-License-Identifier: Apache-2.0

// Package handle stores fixed-size objects behind generational 32-bit handles.
//
// A pool has a fixed capacity chosen at creation. Free slots form a LIFO list;
// every time a slot is handed out its 7-bit generation advances, so a handle
// taken before the slot was erased and reused no longer resolves.
//
// Layout of a Handle:
//
//	bits  0-15  slot index
//	bits 16-22  generation
//	bit     23  set on every handle a pool issues
//	bits 24-31  type id of the pool
//
// The zero Handle is Invalid. Lookups of stale or foreign handles are an
// ordinary outcome: At returns nil and Has returns false.
//
// Pool stores raw bytes and can run over caller supplied memory, for example
// a slice allocated from an arena. Store keeps Go values of one type.
package handle
