// SPDX-License-Identifier: Apache-2.0

package block

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/wundergraph/go-memkit/internal/align"
	"github.com/wundergraph/go-memkit/internal/logger"
)

const (
	// Granularity is the default platform allocation granularity (64 KiB).
	Granularity = 64 << 10

	// Overhead is the number of bytes reserved at the front of every block.
	Overhead = 64
)

// DefaultRegistry records every block handed out by DefaultProvider.
var DefaultRegistry = NewRegistry()

// DefaultProvider allocates from the Go heap with the default granularity.
var DefaultProvider = NewProvider()

// Provider turns Source regions into registered blocks.
type Provider struct {
	source      Source
	registry    *Registry
	granularity int
	log         *slog.Logger
	nextID      atomic.Uint64
}

// Option represents a configuration option for a Provider.
type Option func(*Provider)

// WithSource sets the platform source blocks are acquired from.
func WithSource(s Source) Option {
	return func(p *Provider) {
		p.source = s
	}
}

// WithRegistry sets the registry blocks are recorded in.
func WithRegistry(r *Registry) Option {
	return func(p *Provider) {
		p.registry = r
	}
}

// WithGranularity sets the size blocks are rounded up to. Values below
// Overhead+1 are ignored.
func WithGranularity(n int) Option {
	return func(p *Provider) {
		if n > Overhead {
			p.granularity = n
		}
	}
}

// WithLogger sets the logger used for block lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.log = l
	}
}

// NewProvider creates a provider. Without options it allocates from the Go
// heap, rounds to Granularity and records blocks in DefaultRegistry.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		source:      GoSource{},
		registry:    DefaultRegistry,
		granularity: Granularity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// logger returns the provider's logger, falling back to the current global
// logger when none was set.
func (p *Provider) logger() *slog.Logger {
	if p.log != nil {
		return p.log
	}
	return logger.L
}

// Registry returns the registry the provider records blocks in.
func (p *Provider) Registry() *Registry { return p.registry }

// Granularity returns the size blocks are rounded up to.
func (p *Provider) Granularity() int { return p.granularity }

// BlockSize returns the usable capacity of a block allocated for minSize bytes.
func (p *Provider) BlockSize(minSize int) int {
	return align.UpTo(minSize+Overhead, p.granularity) - Overhead
}

// Allocate returns a registered block with at least minSize usable bytes.
func (p *Provider) Allocate(kind Kind, minSize int) (*Block, error) {
	if minSize < 0 || minSize > math.MaxInt-p.granularity-Overhead {
		return nil, errors.Wrapf(ErrInvalidSize, "%d", minSize)
	}
	total := align.UpTo(minSize+Overhead, p.granularity)
	raw, err := p.source.Acquire(total)
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, ErrPlatform), "block: acquire %d bytes", total)
	}
	if len(raw) != total {
		return nil, errors.AssertionFailedf("block: source returned %d bytes, want %d", len(raw), total)
	}

	b := &Block{
		raw:      raw,
		data:     raw[Overhead:total:total],
		kind:     kind,
		id:       p.nextID.Add(1),
		provider: p,
	}
	p.registry.add(b)

	p.logger().Debug("block allocated",
		"id", b.id,
		"kind", kind.String(),
		"requested", minSize,
		"capacity", b.Cap(),
	)
	return b, nil
}

// Deallocate unregisters b and releases it to the source immediately.
func (p *Provider) Deallocate(b *Block) error {
	if b == nil {
		return nil
	}
	if b.provider != p {
		return ErrForeignBlock
	}
	if b.raw == nil {
		return errors.Wrapf(ErrReleased, "block %d", b.id)
	}
	p.registry.remove(b)

	raw := b.raw
	b.raw, b.data = nil, nil
	b.used.Store(0)

	p.logger().Debug("block released", "id", b.id, "kind", b.kind.String(), "capacity", len(raw)-Overhead)
	if err := p.source.Release(raw); err != nil {
		return errors.Wrapf(errors.Mark(err, ErrPlatform), "block: release %d", b.id)
	}
	return nil
}

// Teardown releases every block this provider still has registered. Containers
// owning those blocks must not be used afterwards.
func (p *Provider) Teardown() error {
	var errs error
	for _, b := range p.registry.owned(p) {
		if err := p.Deallocate(b); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
