// SPDX-License-Identifier: Apache-2.0

// Package config loads allocator settings from YAML.
//
//	block:
//	  source: mmap
//	  granularity: 64KB
//	arena:
//	  min_block_size: 32KB
//	  initial_blocks: 1
//	heap:
//	  min_block_size: 256KB
//	pool:
//	  capacity: 1024
//	  element_size: 64
//	log:
//	  level: debug
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	arena "github.com/wundergraph/go-memkit"
	"github.com/wundergraph/go-memkit/block"
	"github.com/wundergraph/go-memkit/handle"
	"github.com/wundergraph/go-memkit/heap"
	"github.com/wundergraph/go-memkit/internal/logger"
)

// ErrInvalid is wrapped by every validation and parse error.
var ErrInvalid = errors.New("config: invalid")

// Config holds the settings for every allocator.
type Config struct {
	Block BlockConfig `yaml:"block" json:"block"`
	Arena ArenaConfig `yaml:"arena" json:"arena"`
	Heap  HeapConfig  `yaml:"heap" json:"heap"`
	Pool  PoolConfig  `yaml:"pool" json:"pool"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// BlockConfig selects the platform source and block granularity.
type BlockConfig struct {
	Source      string `yaml:"source" json:"source"`
	Granularity Size   `yaml:"granularity" json:"granularity"`
}

// ArenaConfig configures arenas.
type ArenaConfig struct {
	MinBlockSize        Size `yaml:"min_block_size" json:"min_block_size"`
	InitialBlocks       int  `yaml:"initial_blocks" json:"initial_blocks"`
	PreemptiveThreshold Size `yaml:"preemptive_threshold" json:"preemptive_threshold"`
}

// HeapConfig configures heaps.
type HeapConfig struct {
	MinBlockSize Size `yaml:"min_block_size" json:"min_block_size"`
}

// PoolConfig configures handle pools.
type PoolConfig struct {
	Capacity    int   `yaml:"capacity" json:"capacity"`
	ElementSize Size  `yaml:"element_size" json:"element_size"`
	TypeID      uint8 `yaml:"type_id" json:"type_id"`
}

// LogConfig configures the package logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Block: BlockConfig{
			Source:      "go",
			Granularity: block.Granularity,
		},
		Arena: ArenaConfig{
			MinBlockSize:        arena.DefaultMinBlockSize,
			PreemptiveThreshold: arena.DefaultPreemptiveThreshold,
		},
		Heap: HeapConfig{
			MinBlockSize: heap.DefaultMinBlockSize,
		},
		Pool: PoolConfig{
			Capacity:    1024,
			ElementSize: 64,
			TypeID:      1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path and overlays it on Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	return Parse(data)
}

// Parse overlays YAML data on Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(errors.Mark(err, ErrInvalid), "config: parse")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	switch {
	case c.Block.Granularity <= block.Overhead:
		return errors.Wrapf(ErrInvalid, "block.granularity %d must exceed %d", c.Block.Granularity, block.Overhead)
	case c.Arena.MinBlockSize < 0:
		return errors.Wrapf(ErrInvalid, "arena.min_block_size %d", c.Arena.MinBlockSize)
	case c.Arena.InitialBlocks < 0:
		return errors.Wrapf(ErrInvalid, "arena.initial_blocks %d", c.Arena.InitialBlocks)
	case c.Arena.PreemptiveThreshold < 0:
		return errors.Wrapf(ErrInvalid, "arena.preemptive_threshold %d", c.Arena.PreemptiveThreshold)
	case c.Heap.MinBlockSize < 0:
		return errors.Wrapf(ErrInvalid, "heap.min_block_size %d", c.Heap.MinBlockSize)
	case c.Pool.Capacity <= 0 || c.Pool.Capacity > handle.MaxCapacity:
		return errors.Wrapf(ErrInvalid, "pool.capacity %d outside [1, %d]", c.Pool.Capacity, handle.MaxCapacity)
	case c.Pool.ElementSize <= 0:
		return errors.Wrapf(ErrInvalid, "pool.element_size %d", c.Pool.ElementSize)
	case c.Log.Format != "text" && c.Log.Format != "json":
		return errors.Wrapf(ErrInvalid, "log.format %q", c.Log.Format)
	}
	if _, err := block.SourceByName(c.Block.Source); err != nil {
		return errors.Mark(errors.Wrap(err, "block.source"), ErrInvalid)
	}
	return nil
}

// LoggerOptions returns enabled logger options at the configured level and
// format.
func (c Config) LoggerOptions() logger.Options {
	return logger.Options{
		Enabled: true,
		Level:   logger.ParseLevel(c.Log.Level),
		JSON:    c.Log.Format == "json",
	}
}

// Provider builds a block provider with its own registry.
func (c Config) Provider(log *slog.Logger) (*block.Provider, error) {
	src, err := block.SourceByName(c.Block.Source)
	if err != nil {
		return nil, err
	}
	return block.NewProvider(
		block.WithSource(src),
		block.WithGranularity(c.Block.Granularity.Bytes()),
		block.WithRegistry(block.NewRegistry()),
		block.WithLogger(log),
	), nil
}

// ArenaOptions returns the arena options for p.
func (c Config) ArenaOptions(p *block.Provider, log *slog.Logger) []arena.Option {
	return []arena.Option{
		arena.WithProvider(p),
		arena.WithMinBlockSize(c.Arena.MinBlockSize.Bytes()),
		arena.WithInitialBlockCount(c.Arena.InitialBlocks),
		arena.WithPreemptiveThreshold(c.Arena.PreemptiveThreshold.Bytes()),
		arena.WithLogger(log),
	}
}

// HeapOptions returns the heap options for p.
func (c Config) HeapOptions(p *block.Provider, log *slog.Logger) []heap.Option {
	return []heap.Option{
		heap.WithProvider(p),
		heap.WithMinBlockSize(c.Heap.MinBlockSize.Bytes()),
		heap.WithLogger(log),
	}
}
