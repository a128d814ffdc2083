// SPDX-License-Identifier: Apache-2.0

package arena

// TemporaryMemory is a scoped region of an arena. Everything allocated from
// the arena after BeginTemporaryMemory is reclaimed and zeroed by End unless
// Keep commits it first.
//
// Tokens nest: they must be ended or kept in the reverse order they were begun.
//
//	tmp, err := a.BeginTemporaryMemory()
//	if err != nil {
//	    return err
//	}
//	defer tmp.End()
type TemporaryMemory struct {
	arena   *Arena
	block   int // last block at begin, -1 if the chain was empty
	used    int // used counter of that block at begin
	current int // arena cursor at begin
	epoch   uint64
	done    bool
}

// BeginTemporaryMemory saves the cursor of the arena's last block. Only memory
// forward of that point is guaranteed unused by the enclosing code, which is
// why the token is taken against the last block rather than the current one.
func (a *Arena) BeginTemporaryMemory() (*TemporaryMemory, error) {
	if err := a.guard.Enter(); err != nil {
		return nil, err
	}
	defer a.guard.Exit()

	t := &TemporaryMemory{
		arena:   a,
		block:   len(a.blocks) - 1,
		current: a.current,
		epoch:   a.epoch,
	}
	if t.block >= 0 {
		t.used = a.blocks[t.block].Used()
	}
	a.temps = append(a.temps, t)
	return t, nil
}

// End zeroes and reclaims everything allocated since the token was begun.
// Ending a token that was already ended or kept is a no-op.
func (t *TemporaryMemory) End() error {
	return t.close(true)
}

// Keep commits everything allocated since the token was begun. The token
// becomes inert.
func (t *TemporaryMemory) Keep() error {
	return t.close(false)
}

// Open reports whether the token has been neither ended nor kept.
func (t *TemporaryMemory) Open() bool {
	return !t.done
}

func (t *TemporaryMemory) close(release bool) error {
	if t.done {
		return nil
	}
	a := t.arena
	if err := a.guard.Enter(); err != nil {
		return err
	}
	defer a.guard.Exit()

	if t.epoch != a.epoch {
		t.done = true
		return ErrTemporaryStale
	}
	if n := len(a.temps); n == 0 || a.temps[n-1] != t {
		return ErrTemporaryOrder
	}
	a.temps[len(a.temps)-1] = nil
	a.temps = a.temps[:len(a.temps)-1]
	t.done = true

	if release {
		a.rewind(t.block, t.used)
		a.current = t.current
		if a.current < 0 && len(a.blocks) > 0 {
			a.current = 0
		}
	}
	return nil
}
