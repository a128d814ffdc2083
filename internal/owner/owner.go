// SPDX-License-Identifier: Apache-2.0

// Package owner detects concurrent use of single-owner containers.
//
// Arenas and heaps are owned by one goroutine at a time. Go has no goroutine
// identity to assert against, so a Guard instead catches two goroutines being
// inside the same container at once and reports it as an error instead of
// corrupting the chains.
package owner

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrConcurrentUse is returned when a second goroutine enters a guarded container.
var ErrConcurrentUse = errors.New("owner: concurrent use of single-owner container")

// Guard marks a container as busy for the duration of one operation.
// The zero value is ready to use.
type Guard struct {
	busy atomic.Bool
}

// Enter claims the guard. Every successful Enter must be paired with Exit.
func (g *Guard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrConcurrentUse
	}
	return nil
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.busy.Store(false)
}

// Busy reports whether an operation is in progress.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
