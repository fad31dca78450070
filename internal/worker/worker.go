// Package worker implements the Fetch & Distribution Worker (core
// mode) and the Sync Puller (follower mode) — §4.5. Grounded in the
// teacher's provider-poll-loop shape (fetch, persist, sleep) found
// across its exchange adapters, generalized here into one batching
// loop over a symbol universe instead of a single pair stream.
package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/store"
	"github.com/sawpanic/vnmarket/internal/upstream"
)

const batchSize = 10

// batchStartDate is the fixed history-backfill floor from §4.5 step
// 4a ("2024-01-01"). The worker always asks for the full history since
// then; the store's monotonic append/replace semantics make repeated
// full replaces idempotent.
var batchStartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Fetcher is the subset of the Upstream Client the worker calls.
type Fetcher interface {
	FetchBatch(ctx context.Context, symbols []string, start, end time.Time, interval upstream.Interval) (map[string]bar.Series, error)
}

// Worker runs the core-mode fetch-and-distribute loop. Fan-out is a
// plain function rather than an interface: gossip.Fanout.Broadcast
// already matches this shape, and the worker has no need to mock
// anything beyond it in tests.
type Worker struct {
	fetcher    Fetcher
	store      *store.Store
	broadcast  func(ctx context.Context, b bar.Bar, production bool)
	symbols    []string
	production bool
	selector   IntervalSelector
	log        zerolog.Logger

	sleep func(time.Duration)
	rng   *rand.Rand
}

// Config configures a Worker.
type Config struct {
	Fetcher    Fetcher
	Store      *store.Store
	Broadcast  func(ctx context.Context, b bar.Bar, production bool)
	Symbols    []string
	Production bool
	Selector   IntervalSelector
	Logger     zerolog.Logger
}

// New constructs a core-mode Worker.
func New(cfg Config) *Worker {
	return &Worker{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		broadcast:  cfg.Broadcast,
		symbols:    cfg.Symbols,
		production: cfg.Production,
		selector:   cfg.Selector,
		log:        cfg.Logger,
		sleep:      time.Sleep,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops forever, planning and fetching batches, until ctx is
// canceled. It never returns an error: per-batch failures are logged
// and the loop proceeds (§4.5 "failure semantics").
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		w.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.selector.CurrentInterval()):
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	batches := planBatches(w.symbols, w.rng)

	for _, batch := range batches {
		if ctx.Err() != nil {
			return
		}
		w.runBatch(ctx, batch)

		sleepMS := 1000 + w.rng.Intn(1001)
		w.sleep(time.Duration(sleepMS) * time.Millisecond)
	}
}

func (w *Worker) runBatch(ctx context.Context, batch []string) {
	results, err := w.fetcher.FetchBatch(ctx, batch, batchStartDate, time.Time{}, upstream.Interval1D)
	if err != nil {
		w.log.Warn().Err(err).Strs("batch", batch).Msg("worker: batch fetch failed, continuing")
		return
	}

	for symbol, series := range results {
		if len(series) == 0 {
			continue
		}
		w.store.Replace(symbol, series)

		last, ok := series.Last()
		if !ok {
			continue
		}
		if w.broadcast != nil {
			w.broadcast(ctx, last, w.production)
		}
	}
}

// planBatches deduplicates, shuffles, and partitions symbols into
// contiguous batches of batchSize (§4.5 steps 2-3).
func planBatches(symbols []string, rng *rand.Rand) [][]string {
	seen := make(map[string]struct{}, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	rng.Shuffle(len(unique), func(i, j int) { unique[i], unique[j] = unique[j], unique[i] })

	var batches [][]string
	for i := 0; i < len(unique); i += batchSize {
		end := i + batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batches = append(batches, unique[i:end])
	}
	return batches
}
