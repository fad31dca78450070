// Package gossip implements one-shot, fire-and-forget distribution of
// a single Bar to peer nodes (§4.5 step c, §6.3): POST to every
// internal peer with a bearer token, and — in production — to every
// public peer with no auth. Grounded in the teacher's
// infra/breakers pattern for per-call isolation, generalized here to
// a concurrent fan-out (one goroutine per peer) instead of a single
// upstream target.
package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vnmarket/internal/bar"
)

// perCallTimeout bounds every fan-out POST so a dead peer cannot leak
// a task (§5 "implementations should impose their own bound (≤30 s)
// so leaked tasks are impossible").
const perCallTimeout = 30 * time.Second

// ResultRecorder receives the outcome of one fan-out call, for
// telemetry.
type ResultRecorder interface {
	ObserveFanoutResult(peerKind string, ok bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveFanoutResult(string, bool) {}

// Fanout distributes bars to the configured peer sets.
type Fanout struct {
	httpClient    *http.Client
	internalPeers []string
	publicPeers   []string
	primaryToken  string
	metrics       ResultRecorder
	log           zerolog.Logger
}

// Config configures a Fanout.
type Config struct {
	InternalPeers []string
	PublicPeers   []string
	PrimaryToken  string
	Metrics       ResultRecorder
	Logger        zerolog.Logger
}

// New constructs a Fanout.
func New(cfg Config) *Fanout {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Fanout{
		httpClient:    &http.Client{Timeout: perCallTimeout},
		internalPeers: cfg.InternalPeers,
		publicPeers:   cfg.PublicPeers,
		primaryToken:  cfg.PrimaryToken,
		metrics:       metrics,
		log:           cfg.Logger,
	}
}

// Broadcast fans b out to every internal peer, and — when production
// is true (§4.5 "when environment == production") — to every public
// peer too. It returns once every POST has either completed or timed
// out; it never returns an error, matching §7's "fan-out failure:
// logged; never propagated; never fatal".
func (f *Fanout) Broadcast(ctx context.Context, b bar.Bar, production bool) {
	done := make(chan struct{}, len(f.internalPeers)+len(f.publicPeers))

	for _, peer := range f.internalPeers {
		peer := peer
		go func() {
			f.send(ctx, peer+"/gossip", b, "Bearer "+f.primaryToken, "internal")
			done <- struct{}{}
		}()
	}

	if production {
		for _, peer := range f.publicPeers {
			peer := peer
			go func() {
				f.send(ctx, peer+"/public/gossip", b, "", "public")
				done <- struct{}{}
			}()
		}
	}

	total := len(f.internalPeers)
	if production {
		total += len(f.publicPeers)
	}
	for i := 0; i < total; i++ {
		<-done
	}
}

func (f *Fanout) send(parent context.Context, url string, b bar.Bar, auth, peerKind string) {
	ctx, cancel := context.WithTimeout(parent, perCallTimeout)
	defer cancel()

	raw, err := json.Marshal(b)
	if err != nil {
		f.log.Warn().Err(err).Str("peer", url).Msg("gossip: marshal failed")
		f.metrics.ObserveFanoutResult(peerKind, false)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		f.log.Warn().Err(err).Str("peer", url).Msg("gossip: request construction failed")
		f.metrics.ObserveFanoutResult(peerKind, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Str("peer", url).Msg("gossip: fan-out failed")
		f.metrics.ObserveFanoutResult(peerKind, false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Warn().Int("status", resp.StatusCode).Str("peer", url).Msg("gossip: peer rejected bar")
		f.metrics.ObserveFanoutResult(peerKind, false)
		return
	}
	f.metrics.ObserveFanoutResult(peerKind, true)
}
