// Package bar defines the OHLCV observation shared by every component:
// the upstream client produces it, the store holds it, the ingestion
// pipeline validates and commits it, and gossip fans it out.
package bar

import (
	"fmt"
	"math"
	"time"
)

// Source names where a Bar can enter the node. Bar has no field of
// this type, so it is never part of the wire shape (§6.1), and no
// component currently sets or reads it.
type Source string

const (
	SourceUpstream       Source = "upstream"
	SourceInternalGossip Source = "internal_gossip"
	SourcePublicGossip   Source = "public_gossip"
	SourceFollowerSync   Source = "follower_sync"
)

// Bar is one OHLCV observation for a symbol over one interval.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Symbol string    `json:"symbol,omitempty"`
}

// Valid reports whether the bar's OHLCV fields satisfy the parse-time
// invariants of §4.1: finite, positive OHLC and non-negative volume.
// It does not check Symbol or Time — those are validated by callers
// according to their own rules (ingest requires Symbol, the upstream
// parser requires Time >= start_date).
func (b Bar) Valid() bool {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return false
		}
	}
	if b.Volume < 0 {
		return false
	}
	return true
}

// Series is an ordered sequence of bars for one symbol, sorted
// ascending by Time with strictly increasing timestamps (invariant 1).
type Series []Bar

// Last returns the most recent bar, or false if the series is empty.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// SortedUnique returns a copy of bars sorted ascending by Time with
// duplicate timestamps collapsed (last write for a given timestamp
// wins), satisfying invariant 1 for any unordered input.
func SortedUnique(bars []Bar) Series {
	if len(bars) == 0 {
		return nil
	}
	byTime := make(map[int64]Bar, len(bars))
	for _, b := range bars {
		byTime[b.Time.UnixNano()] = b
	}
	out := make(Series, 0, len(byTime))
	for _, b := range byTime {
		out = append(out, b)
	}
	sortByTime(out)
	return out
}

func sortByTime(s Series) {
	// insertion sort is adequate: batches are small (daily bars per
	// symbol, or single-bar gossip merges) and avoids pulling in
	// sort.Slice's reflection for the hot ingest path.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].Time.After(s[j].Time); j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// PriceDelta returns the fractional absolute change of close between
// two bars: |q.Close - p.Close| / p.Close, used by the price-guard
// (§4.4 step 4).
func PriceDelta(prior, next Bar) float64 {
	if prior.Close == 0 {
		return math.Inf(1)
	}
	return math.Abs(next.Close-prior.Close) / prior.Close
}

func (b Bar) String() string {
	return fmt.Sprintf("%s@%s close=%.4f vol=%d", b.Symbol, b.Time.Format(time.RFC3339), b.Close, b.Volume)
}
