package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/ingest"
	"github.com/sawpanic/vnmarket/internal/reputation"
	"github.com/sawpanic/vnmarket/internal/store"
	"github.com/sawpanic/vnmarket/internal/telemetry"
	"github.com/sawpanic/vnmarket/internal/tickergroup"
	"github.com/sawpanic/vnmarket/internal/upstream"
)

// handlers holds the shared references the HTTP surface reads and
// writes through (§9 "a startup-built context value passed by shared
// reference"). It never owns network I/O beyond responding.
type handlers struct {
	pipeline       *ingest.Pipeline
	store          *store.Store
	registry       *reputation.Registry
	metrics        *telemetry.Metrics
	tickerGroup    tickergroup.Catalogue
	upstreamClient *upstream.Client
	nodeName       string
	startedAt      time.Time
	log            zerolog.Logger
	publicLim      *rate.Limiter
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// Tickers handles GET /tickers (§6.1): the full symbol -> series
// snapshot, and the payload a follower's Sync Puller consumes (§6.3).
func (h *handlers) Tickers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetAll())
}

// TickerGroups handles GET /tickers/group: the static catalogue
// mapping group name to symbol list.
func (h *handlers) TickerGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tickerGroup)
}

func decodeBar(r *http.Request) (bar.Bar, error) {
	var b bar.Bar
	err := json.NewDecoder(r.Body).Decode(&b)
	return b, err
}

// InternalGossip handles POST /gossip (§6.1, §4.4 "Authenticated
// ingest"): bearer-token-authenticated single-bar commit.
func (h *handlers) InternalGossip(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	b, err := decodeBar(r)
	if err != nil {
		h.metrics.ObserveIngestRejection("internal", "malformed")
		http.Error(w, `{"error":"malformed_body"}`, http.StatusBadRequest)
		return
	}

	switch h.pipeline.AuthenticatedIngest(token, b, time.Now()) {
	case ingest.Unauthorized:
		h.metrics.ObserveIngestRejection("internal", "unauthorized")
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	case ingest.BadRequest:
		h.metrics.ObserveIngestRejection("internal", "bad-request")
		http.Error(w, `{"error":"missing_symbol"}`, http.StatusBadRequest)
	default:
		h.metrics.ObserveIngestCommit("internal")
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

// PublicGossip handles POST /public/gossip (§6.1, §4.4 "Public
// ingest"), gated first by a per-second token bucket (§5) ahead of any
// reputation or price check.
func (h *handlers) PublicGossip(w http.ResponseWriter, r *http.Request) {
	if !h.publicLim.Allow() {
		http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
		return
	}

	source := sourceIP(r)
	b, err := decodeBar(r)
	if err != nil {
		h.metrics.ObserveIngestRejection("public", "malformed")
		http.Error(w, `{"error":"malformed_body"}`, http.StatusBadRequest)
		return
	}

	switch h.pipeline.PublicIngest(source, b, time.Now()) {
	case ingest.Forbidden:
		h.metrics.ObserveIngestRejection("public", "banned")
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	case ingest.Unavailable:
		h.metrics.ObserveIngestRejection("public", "trust-stale")
		http.Error(w, `{"error":"trust_stale"}`, http.StatusServiceUnavailable)
	case ingest.BadRequest:
		h.metrics.ObserveIngestRejection("public", "bad-request")
		http.Error(w, `{"error":"bad_request"}`, http.StatusBadRequest)
	default:
		h.metrics.ObserveIngestCommit("public")
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

// Health handles GET /health: node identity and runtime stats,
// including the breaker state, rate-limiter remaining capacity,
// watermark age, and actor counts SPEC_FULL.md §6 commits to (§4.1,
// §4.4). The actor counts, watermark age and breaker state are also
// pushed onto their Prometheus gauges, so a single request both
// answers an operator and keeps those gauges current; the rate-limiter
// capacity has no gauge and is reported here only.
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	h.metrics.SetReputationGauges(h.registry.Count(), h.registry.BannedCount())

	watermarkAge := h.pipeline.Watermark.StaleSince(now)
	h.metrics.SetWatermarkAge(watermarkAge)

	breakerState := "n/a" // follower mode runs no Upstream Client
	if h.upstreamClient != nil {
		state := h.upstreamClient.BreakerState()
		h.metrics.SetBreakerState(state)
		breakerState = state.String()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node":            h.nodeName,
		"status":          "healthy",
		"uptime_seconds":  int(time.Since(h.startedAt).Seconds()),
		"symbols_tracked": len(h.store.Symbols()),
		"reputation": map[string]int{
			"actors": h.registry.Count(),
			"banned": h.registry.BannedCount(),
		},
		"watermark_age_seconds":    watermarkAge.Seconds(),
		"breaker_state":            breakerState,
		"public_gossip_rate_limit": h.publicLim.TokensAt(now),
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

func sourceIP(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
