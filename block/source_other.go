// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package block

// MmapSource falls back to the Go heap where anonymous mappings are unavailable.
type MmapSource struct {
	GoSource
}
