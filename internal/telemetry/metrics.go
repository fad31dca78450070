// Package telemetry centralizes the node's Prometheus metrics,
// grounded in the teacher's internal/interfaces/http/metrics.go and
// kraken.Client.MetricsCallback pattern, generalized into one
// registry shared by the upstream client, the HTTP ingestion
// handlers, and the gossip fan-out instead of per-provider callbacks.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds every counter/gauge/histogram the node exposes at
// /metrics (§6.1 ambient addition, SPEC_FULL §6).
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec

	ingestRejections *prometheus.CounterVec
	ingestCommits     *prometheus.CounterVec

	fanoutFailures *prometheus.CounterVec
	fanoutSuccess  *prometheus.CounterVec

	actorsTotal  prometheus.Gauge
	actorsBanned prometheus.Gauge

	watermarkAgeSeconds prometheus.Gauge
	breakerState        prometheus.Gauge
}

// New constructs and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnmarket_upstream_requests_total",
			Help: "Upstream chart API requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vnmarket_upstream_request_duration_seconds",
			Help:    "Upstream chart API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ingestRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnmarket_ingest_rejections_total",
			Help: "Rejected ingestion attempts by reason.",
		}, []string{"path", "reason"}),
		ingestCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnmarket_ingest_commits_total",
			Help: "Committed ingestion attempts by path.",
		}, []string{"path"}),
		fanoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnmarket_fanout_failures_total",
			Help: "Gossip fan-out POSTs that failed, by peer kind.",
		}, []string{"peer_kind"}),
		fanoutSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnmarket_fanout_success_total",
			Help: "Gossip fan-out POSTs that succeeded, by peer kind.",
		}, []string{"peer_kind"}),
		actorsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_reputation_actors_total",
			Help: "Known public actors in the reputation registry.",
		}),
		actorsBanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_reputation_actors_banned",
			Help: "Banned public actors in the reputation registry.",
		}),
		watermarkAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_trust_watermark_age_seconds",
			Help: "Seconds since the last authenticated ingest.",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_upstream_breaker_state",
			Help: "Upstream circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
	}

	reg.MustRegister(
		m.upstreamRequests, m.upstreamDuration,
		m.ingestRejections, m.ingestCommits,
		m.fanoutFailures, m.fanoutSuccess,
		m.actorsTotal, m.actorsBanned,
		m.watermarkAgeSeconds, m.breakerState,
	)
	return m
}

// Registry exposes the underlying Prometheus registry for the
// /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveUpstreamRequest implements upstream.MetricsRecorder.
func (m *Metrics) ObserveUpstreamRequest(endpoint, status string, duration time.Duration) {
	m.upstreamRequests.WithLabelValues(endpoint, status).Inc()
	m.upstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveIngestRejection records a rejected ingest by path ("internal"
// or "public") and reason (§7's error kinds).
func (m *Metrics) ObserveIngestRejection(path, reason string) {
	m.ingestRejections.WithLabelValues(path, reason).Inc()
}

// ObserveIngestCommit records a successful ingest commit.
func (m *Metrics) ObserveIngestCommit(path string) {
	m.ingestCommits.WithLabelValues(path).Inc()
}

// ObserveFanoutResult records one fan-out POST's outcome.
func (m *Metrics) ObserveFanoutResult(peerKind string, ok bool) {
	if ok {
		m.fanoutSuccess.WithLabelValues(peerKind).Inc()
		return
	}
	m.fanoutFailures.WithLabelValues(peerKind).Inc()
}

// SetReputationGauges updates the actor-count gauges, called on each
// /health request.
func (m *Metrics) SetReputationGauges(total, banned int) {
	m.actorsTotal.Set(float64(total))
	m.actorsBanned.Set(float64(banned))
}

// SetWatermarkAge updates the trust-watermark staleness gauge, called
// from the /health handler on every request (§4.4, §6.1).
func (m *Metrics) SetWatermarkAge(age time.Duration) {
	m.watermarkAgeSeconds.Set(age.Seconds())
}

// SetBreakerState updates the upstream breaker gauge. gobreaker.State
// is already the 0/1/2 closed/half-open/open ordering this gauge
// documents, so the cast needs no translation table.
func (m *Metrics) SetBreakerState(state gobreaker.State) {
	m.breakerState.Set(float64(state))
}
