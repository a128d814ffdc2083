// SPDX-License-Identifier: Apache-2.0

package block

import "github.com/cockroachdb/errors"

// Source is the platform allocation service blocks are carved from.
type Source interface {
	// Acquire returns a zeroed region of exactly size bytes.
	Acquire(size int) ([]byte, error)

	// Release returns a region previously obtained from Acquire.
	Release(buf []byte) error
}

// GoSource allocates blocks on the Go heap. Release leaves reclamation to the
// garbage collector.
type GoSource struct{}

// Acquire satisfies the Source interface.
func (GoSource) Acquire(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Release satisfies the Source interface.
func (GoSource) Release([]byte) error { return nil }

// SourceByName maps a configuration name to a Source: "go" or "mmap".
func SourceByName(name string) (Source, error) {
	switch name {
	case "", "go":
		return GoSource{}, nil
	case "mmap":
		return MmapSource{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownSource, "%q", name)
	}
}
