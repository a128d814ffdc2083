// SPDX-License-Identifier: Apache-2.0

package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	arena "github.com/wundergraph/go-memkit"
	"github.com/wundergraph/go-memkit/heap"
	"github.com/wundergraph/go-memkit/internal/logger"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverlaysDefault(t *testing.T) {
	c, err := Parse([]byte(`
block:
  granularity: 4KB
arena:
  min_block_size: 1MB
  initial_blocks: 2
heap:
  min_block_size: 8192
pool:
  capacity: 16
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	require.Equal(t, 4096, c.Block.Granularity.Bytes())
	require.Equal(t, "go", c.Block.Source)
	require.Equal(t, 1<<20, c.Arena.MinBlockSize.Bytes())
	require.Equal(t, 2, c.Arena.InitialBlocks)
	require.Equal(t, Size(arena.DefaultPreemptiveThreshold), c.Arena.PreemptiveThreshold)
	require.Equal(t, 8192, c.Heap.MinBlockSize.Bytes())
	require.Equal(t, 16, c.Pool.Capacity)
	require.Equal(t, Size(64), c.Pool.ElementSize)
	require.Equal(t, "json", c.Log.Format)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "arena:\n  block_size: 1KB\n"},
		{"bad size", "heap:\n  min_block_size: lots\n"},
		{"tiny granularity", "block:\n  granularity: 32\n"},
		{"pool too large", "pool:\n  capacity: 70000\n"},
		{"unknown source", "block:\n  source: tape\n"},
		{"unknown format", "log:\n  format: xml\n"},
		{"negative blocks", "arena:\n  initial_blocks: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	c := Default()
	c.Heap.MinBlockSize = 1500
	c.Arena.InitialBlocks = 3

	data, err := c.Marshal()
	require.NoError(t, err)
	require.NotContains(t, string(data), "granularity: 65536")
	require.Contains(t, string(data), "min_block_size: 1500")

	back, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, c, back)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  capacity: 8\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, c.Pool.Capacity)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildAllocators(t *testing.T) {
	c := Default()
	c.Block.Granularity = 4096
	c.Arena.InitialBlocks = 1

	opts := c.LoggerOptions()
	require.True(t, opts.Enabled)
	require.Equal(t, slog.LevelInfo, opts.Level)
	opts.Output = io.Discard
	log := logger.New(opts)
	p, err := c.Provider(log)
	require.NoError(t, err)
	require.Equal(t, 4096, p.Granularity())

	a, err := arena.New(c.ArenaOptions(p, log)...)
	require.NoError(t, err)
	require.Equal(t, 1, a.BlockCount())

	h, err := heap.New(c.HeapOptions(p, log)...)
	require.NoError(t, err)
	_, err = h.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, 2, p.Registry().Count())
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("64KB")
	require.NoError(t, err)
	require.Equal(t, Size(64<<10), s)

	_, err = ParseSize("64XB")
	require.ErrorIs(t, err, ErrInvalid)
}
