// Package store implements the Symbol Store: a concurrent map from
// symbol to its ordered bar series, guarded by a single coarse lock
// (§4.2, §9 "a single exclusive lock per store is adequate").
package store

import (
	"sync"

	"github.com/sawpanic/vnmarket/internal/bar"
)

// Store is the process-lifetime symbol → series map. The zero value
// is not usable; construct with New.
type Store struct {
	mu     sync.RWMutex
	series map[string]bar.Series
}

// New creates an empty Store.
func New() *Store {
	return &Store{series: make(map[string]bar.Series)}
}

// Get returns the series for symbol and whether it exists. The
// returned slice is a defensive copy; callers may not mutate the
// store's state through it.
func (s *Store) Get(symbol string) (bar.Series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[symbol]
	if !ok {
		return nil, false
	}
	out := make(bar.Series, len(series))
	copy(out, series)
	return out, true
}

// GetAll returns a consistent snapshot of every known symbol's
// series (§4.2 "get_all returns a consistent snapshot").
func (s *Store) GetAll() map[string]bar.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bar.Series, len(s.series))
	for symbol, series := range s.series {
		cp := make(bar.Series, len(series))
		copy(cp, series)
		out[symbol] = cp
	}
	return out
}

// Replace atomically installs a full series for symbol, sorted and
// deduplicated per invariant 1.
func (s *Store) Replace(symbol string, series bar.Series) {
	sorted := bar.SortedUnique(series)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[symbol] = sorted
}

// AppendIfNewer appends b to symbol's series iff the series is empty
// or b.Time is strictly after the current last bar's time, preserving
// invariant 1. It reports whether the append committed.
func (s *Store) AppendIfNewer(symbol string, b bar.Bar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[symbol]
	if last, ok := series.Last(); ok && !b.Time.After(last.Time) {
		return false
	}
	s.series[symbol] = append(series, b)
	return true
}

// AppendSorted appends b to symbol's series and re-sorts the whole
// series by time (§4.4 step 5 of the public ingest path: "commit the
// payload by appending to the series and re-sorting by time"). Unlike
// AppendIfNewer, it does not reject out-of-order bars — callers that
// need the monotonicity check use AppendIfNewer instead.
func (s *Store) AppendSorted(symbol string, b bar.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.series[symbol], b)
	s.series[symbol] = bar.SortedUnique(series)
}

// LastBar returns the most recent bar for symbol, if any — used by
// the public ingest path's baseline lookup (§4.4 step 4).
func (s *Store) LastBar(symbol string) (bar.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[symbol].Last()
}

// Symbols returns the set of symbols currently held, for metrics and
// tests; it does not imply iteration order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for symbol := range s.series {
		out = append(out, symbol)
	}
	return out
}
