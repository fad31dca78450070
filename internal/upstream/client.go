// Package upstream implements the Upstream Client (§4.1): batched
// history fetches against the market-data HTTP API under a
// sliding-window rate limit, with retry, jitter, and rotating
// User-Agent headers. Its request/response shape is grounded in the
// VietCap Trading API gateway found in the retrieval pack
// (other_examples/..._vietcap_gateway.go.go) — the closest domain
// match for a Vietnamese equity chart API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/vnmarket/internal/bar"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxAttempts           = 5
	maxBackoff            = 60 * time.Second
	// defaultCountBack bounds how many bars back from "to" are
	// requested when the caller leaves end_date unset — the wire
	// contract (§6.2) has no explicit field for "everything since
	// start_date", so this is an implementation choice, sized for
	// ~2 years of daily bars.
	defaultCountBack = 730
)

// MetricsRecorder receives counters for outbound requests, grounded
// in the teacher's kraken.Client.MetricsCallback pattern.
type MetricsRecorder interface {
	ObserveUpstreamRequest(endpoint, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveUpstreamRequest(string, string, time.Duration) {}

// Config configures a Client.
type Config struct {
	ChartURL       string
	LimitPerMinute int
	UserAgentMode  UAMode
	RequestTimeout time.Duration
	Metrics        MetricsRecorder
	Logger         zerolog.Logger
}

// Client issues batched history queries against the upstream
// chart endpoint (§4.1, §6.2).
type Client struct {
	httpClient *http.Client
	chartURL   string
	limiter    *slidingWindowLimiter
	uaMode     UAMode
	breaker    *gobreaker.CircuitBreaker
	metrics    MetricsRecorder
	log        zerolog.Logger
}

// New constructs a Client from Config.
func New(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		chartURL:   cfg.ChartURL,
		limiter:    newSlidingWindowLimiter(cfg.LimitPerMinute),
		uaMode:     cfg.UserAgentMode,
		breaker:    newBreaker("upstream-chart"),
		metrics:    metrics,
		log:        cfg.Logger,
	}
}

// BreakerState reports the circuit breaker's current state, exposed
// to /health and to Prometheus gauges (§4.1, §6.1) so operators can
// see a prolonged upstream outage before the next fetch cycle surfaces
// it as missing data.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// RetriableError wraps an error that exhausted all retry attempts
// (§7 "Upstream-transient ... if all attempts fail, the worker logs
// and proceeds").
type RetriableError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("upstream %s: exhausted %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *RetriableError) Unwrap() error { return e.Err }

// Fetch retrieves one symbol's series at interval, keeping only bars
// at or after start. The request's "to" is always derived from start
// (upstreamTimestamp); end only sizes countBack, and a zero end
// requests defaultCountBack bars.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time, interval Interval) (bar.Series, error) {
	results, err := c.FetchBatch(ctx, []string{symbol}, start, end, interval)
	if err != nil {
		return nil, err
	}
	series, ok := results[symbol]
	if !ok {
		return nil, nil
	}
	return series, nil
}

// FetchBatch retrieves series for multiple symbols in one upstream
// call. A symbol absent from the response, or present with no valid
// bars, maps to absent (no key) in the result (§4.1).
func (c *Client) FetchBatch(ctx context.Context, symbols []string, start, end time.Time, interval Interval) (map[string]bar.Series, error) {
	code, ok := wireCode(interval)
	if !ok {
		return nil, fmt.Errorf("upstream: unsupported interval %q", interval)
	}

	req := chartRequest{
		TimeFrame: code,
		Symbols:   symbols,
		To:        upstreamTimestamp(start),
		CountBack: countBack(start, end),
	}

	body, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	var items []chartItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("upstream: malformed response: %w", err)
	}

	return parseItems(items, symbols, start, c.log), nil
}

// upstreamTimestamp computes the "to" epoch-seconds field per §4.1:
// epoch(start_date + 1 day at midnight UTC) - 7*3600 seconds (the
// market's local UTC+7 offset).
func upstreamTimestamp(start time.Time) int64 {
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1).Unix() - 7*3600
}

func countBack(start, end time.Time) int {
	if end.IsZero() {
		return defaultCountBack
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days
}

// doWithRetry performs the POST with up to maxAttempts tries,
// jittered exponential backoff, and a circuit breaker around the
// whole sequence (§4.1, §7).
func (c *Client) doWithRetry(ctx context.Context, reqBody chartRequest) ([]byte, error) {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.attemptSequence(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) attemptSequence(ctx context.Context, raw []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Admit(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		body, status, err := c.send(ctx, raw)
		duration := time.Since(start)

		if err == nil {
			c.metrics.ObserveUpstreamRequest("chart", "success", duration)
			return body, nil
		}

		lastErr = err
		c.metrics.ObserveUpstreamRequest("chart", "error", duration)

		if pe, ok := err.(*permanentError); ok {
			return nil, pe.Err
		}

		if attempt == maxAttempts {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt-1)))*time.Second + time.Duration(rand.Float64()*float64(time.Second))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if err := ctxSleep(ctx, backoff); err != nil {
			return nil, err
		}
		_ = status
	}
	return nil, &RetriableError{Endpoint: "chart", Attempts: maxAttempts, Err: lastErr}
}

// permanentError marks a response that should not be retried (§7
// "Upstream-permanent ... not retried").
type permanentError struct {
	Err error
}

func (e *permanentError) Error() string { return e.Err.Error() }

func (c *Client) send(ctx context.Context, raw []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chartURL, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, &permanentError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyAntiDetectionHeaders(httpReq.Header, pickUserAgent(c.uaMode))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading body: %w", readErr)
	}

	if resp.StatusCode == http.StatusOK {
		return body, resp.StatusCode, nil
	}
	if isRetriableStatus(resp.StatusCode) {
		return nil, resp.StatusCode, fmt.Errorf("retriable HTTP %d", resp.StatusCode)
	}
	return nil, resp.StatusCode, &permanentError{Err: fmt.Errorf("upstream HTTP %d: %s", resp.StatusCode, string(body))}
}

// isRetriableStatus reports whether a status is retried (§4.1, §7):
// any 5xx, and 403/429.
func isRetriableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

// parseItems validates and normalizes the upstream's parallel-array
// response per §4.1: reject non-finite/non-positive OHLC, negative
// volume, or mismatched array lengths per element; discard bars
// earlier than start; sort ascending; attach symbol. A symbol with no
// valid bars, or missing from the response, is absent from the
// result map.
func parseItems(items []chartItem, requested []string, start time.Time, log zerolog.Logger) map[string]bar.Series {
	out := make(map[string]bar.Series, len(requested))

	for _, item := range items {
		n := len(item.T)
		if len(item.O) != n || len(item.H) != n || len(item.L) != n || len(item.C) != n || len(item.V) != n {
			log.Debug().Str("symbol", item.Symbol).Msg("upstream: parallel array length mismatch, dropping symbol")
			continue
		}

		bars := make([]bar.Bar, 0, n)
		for i := 0; i < n; i++ {
			b := bar.Bar{
				Time:   time.Unix(item.T[i], 0).UTC(),
				Open:   item.O[i],
				High:   item.H[i],
				Low:    item.L[i],
				Close:  item.C[i],
				Volume: item.V[i],
				Symbol: item.Symbol,
			}
			if !b.Valid() {
				log.Debug().Str("symbol", item.Symbol).Time("time", b.Time).Msg("upstream: dropping invalid bar")
				continue
			}
			if b.Time.Before(start) {
				continue
			}
			bars = append(bars, b)
		}

		if len(bars) == 0 {
			continue
		}
		out[item.Symbol] = bar.SortedUnique(bars)
	}

	return out
}
