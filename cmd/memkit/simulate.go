// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/inhies/go-bytesize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	arena "github.com/wundergraph/go-memkit"
	"github.com/wundergraph/go-memkit/block"
	"github.com/wundergraph/go-memkit/config"
	"github.com/wundergraph/go-memkit/handle"
	"github.com/wundergraph/go-memkit/heap"
	"github.com/wundergraph/go-memkit/internal/logger"
)

var (
	simSeed uint64
	simOps  int
)

// staleWindow bounds the erased handles re-checked on every pool operation.
// A slot must be reused Generations times before a handle can resolve again,
// which pushes that handle out of the window first.
const staleWindow = 64

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().Uint64Var(&simSeed, "seed", 1, "Workload seed")
	cmd.Flags().IntVar(&simOps, "ops", 10000, "Number of operations")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run a seeded allocator workload",
		Long: `The simulate command runs a seeded mix of arena temporary scopes, heap
allocations with reference counting and handle pool churn, validates the
heap, and prints statistics for every allocator.

Example:
  memkit simulate
  memkit simulate --seed 42 --ops 100000
  memkit simulate --config memkit.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if simOps < 0 {
				return errors.Newf("--ops must not be negative, got %d", simOps)
			}
			r, err := simulate(cfg, simSeed, simOps, logger.L)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printReport(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

// Report is the outcome of one workload.
type Report struct {
	Seed     uint64         `json:"seed"`
	Ops      int            `json:"ops"`
	Arena    arena.Stats    `json:"arena"`
	Heap     heap.Stats     `json:"heap"`
	Pool     PoolReport     `json:"pool"`
	Registry RegistryReport `json:"registry"`
	Shrunk   int            `json:"heap_blocks_shrunk"`
}

// PoolReport summarizes handle pool activity.
type PoolReport struct {
	Len           int `json:"len"`
	Cap           int `json:"cap"`
	Inserts       int `json:"inserts"`
	Erases        int `json:"erases"`
	Full          int `json:"full"`
	StaleRejected int `json:"stale_rejected"`
}

// RegistryReport summarizes the blocks outstanding when the workload ended.
type RegistryReport struct {
	Blocks      int `json:"blocks"`
	ArenaBlocks int `json:"arena_blocks"`
	HeapBlocks  int `json:"heap_blocks"`
	Bytes       int `json:"bytes"`
	Used        int `json:"used"`
}

type workload struct {
	rng   *rand.Rand
	arena *arena.Arena
	heap  *heap.Heap
	pool  *handle.Pool

	tmp     *arena.TemporaryMemory
	refs    []heap.Ref
	handles []handle.Handle
	stale   []handle.Handle
	payload []byte

	report Report
}

// simulate runs ops operations drawn from seed against allocators built from
// cfg. The same seed and configuration always produce the same report.
func simulate(cfg config.Config, seed uint64, ops int, log *slog.Logger) (*Report, error) {
	p, err := cfg.Provider(log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Teardown() }()

	a, err := arena.New(cfg.ArenaOptions(p, log)...)
	if err != nil {
		return nil, err
	}
	h, err := heap.New(cfg.HeapOptions(p, log)...)
	if err != nil {
		return nil, err
	}

	elem := cfg.Pool.ElementSize.Bytes()
	buf, err := a.Allocate(cfg.Pool.Capacity*elem, 8)
	if err != nil {
		return nil, errors.Wrap(err, "pool storage")
	}
	pool, err := handle.New(elem, cfg.Pool.Capacity, cfg.Pool.TypeID, handle.WithBuffer(buf))
	if err != nil {
		return nil, err
	}
	defer func() { _ = pool.Close() }()

	w := &workload{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		arena:   a,
		heap:    h,
		pool:    pool,
		payload: make([]byte, elem),
		report:  Report{Seed: seed, Ops: ops},
	}
	for i := 0; i < ops; i++ {
		if err := w.step(); err != nil {
			return nil, errors.Wrapf(err, "operation %d", i)
		}
		if i%256 == 255 {
			if err := a.PreemptivelyPushBlock(); err != nil {
				return nil, err
			}
			if err := h.PreemptivelyPushBlock(); err != nil {
				return nil, err
			}
		}
	}
	if w.tmp != nil {
		if err := w.tmp.End(); err != nil {
			return nil, err
		}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	w.report.Arena = a.Stats()
	w.report.Heap = h.Stats()
	w.report.Pool.Len = pool.Len()
	w.report.Pool.Cap = pool.Cap()
	for _, info := range p.Registry().Snapshot() {
		w.report.Registry.Blocks++
		w.report.Registry.Used += info.Used
		switch info.Kind {
		case block.KindArena:
			w.report.Registry.ArenaBlocks++
		case block.KindHeap:
			w.report.Registry.HeapBlocks++
		}
	}
	w.report.Registry.Bytes = p.Registry().Bytes()

	if err := w.drainHeap(); err != nil {
		return nil, err
	}
	if w.report.Shrunk, err = h.Shrink(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	return &w.report, errors.CombineErrors(h.Clear(), a.Clear())
}

func (w *workload) step() error {
	switch w.rng.IntN(10) {
	case 0:
		return w.toggleScope()
	case 1, 2:
		size := w.rng.IntN(4096) + 1
		_, err := w.arena.Allocate(size, 1<<w.rng.IntN(5))
		return err
	case 3, 4:
		ref, err := w.heap.AllocateZeroed(w.rng.IntN(2048))
		if err != nil {
			return err
		}
		w.refs = append(w.refs, ref)
		return nil
	case 5:
		return w.releaseRandom()
	case 6:
		if len(w.refs) == 0 {
			return nil
		}
		return w.heap.AddRef(w.refs[w.rng.IntN(len(w.refs))])
	case 7, 8:
		return w.insert()
	default:
		return w.erase()
	}
}

func (w *workload) toggleScope() error {
	if w.tmp == nil {
		tmp, err := w.arena.BeginTemporaryMemory()
		w.tmp = tmp
		return err
	}
	tmp := w.tmp
	w.tmp = nil
	if w.rng.IntN(4) == 0 {
		return tmp.Keep()
	}
	return tmp.End()
}

// releaseRandom drops one reference of a random allocation, freeing it when
// it holds none.
func (w *workload) releaseRandom() error {
	if len(w.refs) == 0 {
		return nil
	}
	i := w.rng.IntN(len(w.refs))
	ref := w.refs[i]
	n, err := w.heap.RefCount(ref)
	if err != nil {
		return err
	}
	freed := true
	if n == 0 {
		err = w.heap.Free(ref)
	} else {
		freed, err = w.heap.ReleaseRef(ref)
	}
	if err != nil {
		return err
	}
	if freed {
		w.refs[i] = w.refs[len(w.refs)-1]
		w.refs = w.refs[:len(w.refs)-1]
	}
	return nil
}

func (w *workload) drainHeap() error {
	for _, ref := range w.refs {
		for freed := false; !freed; {
			n, err := w.heap.RefCount(ref)
			if err != nil {
				return err
			}
			if n == 0 {
				if err := w.heap.Free(ref); err != nil {
					return err
				}
				break
			}
			if freed, err = w.heap.ReleaseRef(ref); err != nil {
				return err
			}
		}
	}
	w.refs = nil
	return nil
}

func (w *workload) insert() error {
	for i := range w.payload {
		w.payload[i] = byte(w.rng.Uint32())
	}
	h, err := w.pool.Insert(w.payload)
	if errors.Is(err, handle.ErrFull) {
		w.report.Pool.Full++
		return nil
	}
	if err != nil {
		return err
	}
	w.report.Pool.Inserts++
	w.handles = append(w.handles, h)
	return w.checkStale()
}

func (w *workload) erase() error {
	if len(w.handles) == 0 {
		return nil
	}
	i := w.rng.IntN(len(w.handles))
	h := w.handles[i]
	if !w.pool.Erase(h) {
		return errors.AssertionFailedf("live %s did not erase", h)
	}
	w.handles[i] = w.handles[len(w.handles)-1]
	w.handles = w.handles[:len(w.handles)-1]
	w.report.Pool.Erases++

	w.stale = append(w.stale, h)
	if len(w.stale) > staleWindow {
		w.stale = w.stale[1:]
	}
	return w.checkStale()
}

func (w *workload) checkStale() error {
	for _, h := range w.stale {
		if w.pool.Has(h) {
			return errors.AssertionFailedf("erased %s resolves again", h)
		}
		w.report.Pool.StaleRejected++
	}
	return nil
}

func printReport(out io.Writer, r *Report) {
	p := message.NewPrinter(language.English)
	size := func(n int) string { return bytesize.New(float64(n)).String() }

	p.Fprintf(out, "seed %d, %d operations\n\n", r.Seed, r.Ops)

	p.Fprintf(out, "Arena\n")
	p.Fprintf(out, "  blocks:        %d\n", r.Arena.Blocks)
	p.Fprintf(out, "  capacity:      %s\n", size(r.Arena.Capacity))
	p.Fprintf(out, "  used:          %s (%.1f%%)\n", size(r.Arena.Used), r.Arena.Utilization*100)
	p.Fprintf(out, "  peak:          %s\n\n", size(r.Arena.Peak))

	p.Fprintf(out, "Heap\n")
	p.Fprintf(out, "  blocks:        %d (%d shrunk)\n", r.Heap.Blocks, r.Shrunk)
	p.Fprintf(out, "  allocations:   %d\n", r.Heap.Allocs)
	p.Fprintf(out, "  frees:         %d\n", r.Heap.Frees)
	p.Fprintf(out, "  splits:        %d\n", r.Heap.Splits)
	p.Fprintf(out, "  merges:        %d backward, %d forward\n", r.Heap.MergesPrev, r.Heap.MergesNext)
	p.Fprintf(out, "  grows:         %d\n\n", r.Heap.Grows)

	p.Fprintf(out, "Handle pool\n")
	p.Fprintf(out, "  live:          %d of %d\n", r.Pool.Len, r.Pool.Cap)
	p.Fprintf(out, "  inserts:       %d (%d full)\n", r.Pool.Inserts, r.Pool.Full)
	p.Fprintf(out, "  erases:        %d\n", r.Pool.Erases)
	p.Fprintf(out, "  stale checks:  %d\n\n", r.Pool.StaleRejected)

	p.Fprintf(out, "Registry\n")
	p.Fprintf(out, "  blocks:        %d (%d arena, %d heap)\n", r.Registry.Blocks, r.Registry.ArenaBlocks, r.Registry.HeapBlocks)
	p.Fprintf(out, "  reserved:      %s\n", size(r.Registry.Bytes))
	p.Fprintf(out, "  used:          %s\n", size(r.Registry.Used))
}
