package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/store"
)

// Follower runs the Sync Puller (§4.5 "Follower variant"): it
// periodically pulls the full dataset from a core node and merges it
// into the local Symbol Store under the same monotonicity rule used
// everywhere else, without ever fanning out.
type Follower struct {
	httpClient *http.Client
	coreURL    string
	store      *store.Store
	refresh    time.Duration
	log        zerolog.Logger

	sleep func(time.Duration)
}

// NewFollower constructs a Follower.
func NewFollower(coreURL string, s *store.Store, refresh time.Duration, log zerolog.Logger) *Follower {
	return &Follower{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		coreURL:    coreURL,
		store:      s,
		refresh:    refresh,
		log:        log,
		sleep:      time.Sleep,
	}
}

// Run loops forever pulling from the core node until ctx is canceled.
func (f *Follower) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.pullOnce(ctx); err != nil {
			f.log.Warn().Err(err).Msg("follower: pull failed, continuing")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.refresh):
		}
	}
}

// pullOnce performs one GET {core}/tickers and merges the result.
func (f *Follower) pullOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.coreURL+"/tickers", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching core tickers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("core returned status %d", resp.StatusCode)
	}

	var incoming map[string]bar.Series
	if err := json.NewDecoder(resp.Body).Decode(&incoming); err != nil {
		return fmt.Errorf("decoding core tickers: %w", err)
	}

	f.merge(incoming)
	return nil
}

// merge installs each incoming series iff the local series is empty
// or the incoming last bar is strictly newer than the local last bar
// (§4.5 "install the incoming series iff local is empty or
// incoming.last.time > local.last.time"; §8 property 9 "a follower
// never overwrites a newer local series with an older pulled one").
func (f *Follower) merge(incoming map[string]bar.Series) {
	for symbol, series := range incoming {
		incomingLast, ok := series.Last()
		if !ok {
			continue
		}
		localLast, haveLocal := f.store.LastBar(symbol)
		if haveLocal && !incomingLast.Time.After(localLast.Time) {
			continue
		}
		f.store.Replace(symbol, series)
	}
}
