// SPDX-License-Identifier: Apache-2.0

//go:build unix

package block

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// MmapSource maps anonymous private memory outside the Go heap.
type MmapSource struct{}

// Acquire satisfies the Source interface.
func (MmapSource) Acquire(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return buf, nil
}

// Release satisfies the Source interface.
func (MmapSource) Release(buf []byte) error {
	if err := unix.Munmap(buf); err != nil {
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return errors.Wrap(err, "munmap")
	}
	return nil
}
