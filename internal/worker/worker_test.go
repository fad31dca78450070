package worker

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/store"
	"github.com/sawpanic/vnmarket/internal/upstream"
)

func TestPlanBatches_DeduplicatesAndChunksBySize10(t *testing.T) {
	symbols := []string{"A", "B", "A", "C", "D", "E", "F", "G", "H", "I", "J", "K"}
	rng := rand.New(rand.NewSource(1))
	batches := planBatches(symbols, rng)

	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), batchSize)
		total += len(b)
	}
	assert.Equal(t, 11, total, "A must be deduplicated, leaving 11 unique symbols")
}

type fakeFetcher struct {
	calls  int32
	result map[string]bar.Series
	err    error
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, symbols []string, start, end time.Time, interval upstream.Interval) (map[string]bar.Series, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

func TestRunCycle_ReplacesStoreAndBroadcastsLastBar(t *testing.T) {
	now := time.Now().UTC()
	series := bar.Series{{Time: now.Add(-time.Hour), Close: 85, Symbol: "VCB"}, {Time: now, Close: 86, Symbol: "VCB"}}
	fetcher := &fakeFetcher{result: map[string]bar.Series{"VCB": series}}
	s := store.New()

	var broadcastCount int32
	var lastBroadcast bar.Bar
	w := New(Config{
		Fetcher: fetcher,
		Store:   s,
		Broadcast: func(ctx context.Context, b bar.Bar, production bool) {
			atomic.AddInt32(&broadcastCount, 1)
			lastBroadcast = b
		},
		Symbols: []string{"VCB"},
		Logger:  zerolog.Nop(),
	})
	w.sleep = func(time.Duration) {} // skip real inter-batch sleeps in tests

	w.runCycle(context.Background())

	got, ok := s.Get("VCB")
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&broadcastCount))
	assert.Equal(t, 86.0, lastBroadcast.Close)
}

func TestRunCycle_BatchFailureDoesNotAbortOtherBatches(t *testing.T) {
	fetcher := &fakeFetcher{err: assert.AnError}
	s := store.New()
	symbols := make([]string, 25) // 3 batches
	for i := range symbols {
		symbols[i] = string(rune('A' + i))
	}

	w := New(Config{Fetcher: fetcher, Store: s, Symbols: symbols, Logger: zerolog.Nop()})
	w.sleep = func(time.Duration) {}

	w.runCycle(context.Background())
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetcher.calls), "all three batches must still be attempted despite failures")
}
