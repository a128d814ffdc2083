// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"io"
)

// Buffer is a bytes.Buffer-like struct whose storage is carved from an Arena.
// It implements io.Writer, io.Reader, io.WriterTo and io.ReaderFrom.
//
// Growing the buffer allocates a larger region and abandons the old one, which
// is reclaimed with the arena (or the enclosing temporary memory).
type Buffer struct {
	arena *Arena
	buf   []byte // buf[r:] is the unread portion
	r     int
}

// NewArenaBuffer creates a new Buffer backed by the given arena.
func NewArenaBuffer(a *Arena) *Buffer {
	return &Buffer{arena: a}
}

// grow makes room for n more bytes.
func (b *Buffer) grow(n int) error {
	if len(b.buf)+n <= cap(b.buf) {
		return nil
	}
	unread := len(b.buf) - b.r
	if unread+n <= cap(b.buf) {
		// slide the unread bytes down instead of reallocating
		copy(b.buf, b.buf[b.r:])
		b.buf = b.buf[:unread]
		b.r = 0
		return nil
	}
	mem, err := b.arena.Allocate(nextCap(cap(b.buf), unread+n), 1)
	if err != nil {
		return err
	}
	copy(mem, b.buf[b.r:])
	b.buf = mem[:unread]
	b.r = 0
	return nil
}

// Write implements io.Writer interface.
// It writes len(p) bytes from p to the buffer.
func (b *Buffer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := b.grow(len(p)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte writes a single byte to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	if err := b.grow(1); err != nil {
		return err
	}
	b.buf = append(b.buf, c)
	return nil
}

// WriteString writes a string to the buffer.
func (b *Buffer) WriteString(s string) (n int, err error) {
	if len(s) == 0 {
		return 0, nil
	}
	if err := b.grow(len(s)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// WriteTo implements io.WriterTo, draining the buffer into w.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	if b.Len() == 0 {
		return 0, nil
	}
	m, err := w.Write(b.buf[b.r:])
	b.r += m
	if b.r == len(b.buf) {
		b.Reset()
	}
	return int64(m), err
}

// Read reads up to len(p) bytes from the buffer into p.
// It returns io.EOF once the buffer is drained.
func (b *Buffer) Read(p []byte) (n int, err error) {
	if b.Len() == 0 {
		b.Reset()
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n = copy(p, b.buf[b.r:])
	b.r += n
	return n, nil
}

// ReadByte reads and returns the next byte from the buffer.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() == 0 {
		b.Reset()
		return 0, io.EOF
	}
	c := b.buf[b.r]
	b.r++
	return c, nil
}

// Bytes returns a slice of length b.Len() holding the unread portion of the buffer.
// The slice is valid for use only until the next buffer modification.
func (b *Buffer) Bytes() []byte {
	if b.buf == nil {
		return []byte{}
	}
	return b.buf[b.r:]
}

// String returns the contents of the unread portion of the buffer as a string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len returns the number of bytes of the unread portion of the buffer.
func (b *Buffer) Len() int {
	return len(b.buf) - b.r
}

// Cap returns the capacity of the buffer's current arena region.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Reset resets the buffer to be empty but keeps its region for reuse.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.r = 0
}

// Truncate discards all but the first n unread bytes from the buffer.
// It panics if n is negative or greater than the length of the buffer.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > b.Len() {
		panic("arena: truncation out of range")
	}
	b.buf = b.buf[:b.r+n]
}

// ReadFrom implements io.ReaderFrom interface.
// It reads data from r until EOF or error, writing it into arena memory.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	const minRead = 512
	for {
		if err := b.grow(minRead); err != nil {
			return n, err
		}
		m, er := r.Read(b.buf[len(b.buf):cap(b.buf)])
		if m < 0 {
			panic("arena: reader returned negative count from Read")
		}
		b.buf = b.buf[:len(b.buf)+m]
		n += int64(m)
		if er == io.EOF {
			return n, nil
		}
		if er != nil {
			return n, er
		}
	}
}
