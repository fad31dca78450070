package ingest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/reputation"
	"github.com/sawpanic/vnmarket/internal/store"
)

func newTestPipeline() *Pipeline {
	return New(store.New(), reputation.New(), NewWatermark(), Tokens{Primary: "T1", Secondary: "T2"}, zerolog.Nop())
}

func vcbBar(close float64, at time.Time) bar.Bar {
	return bar.Bar{Time: at, Open: 85, High: 86, Low: 84.5, Close: close, Volume: 1000000, Symbol: "VCB"}
}

// S1
func TestAuthenticatedIngest_CommitsAndAdvancesWatermark(t *testing.T) {
	p := newTestPipeline()
	now := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)

	outcome := p.AuthenticatedIngest("T1", vcbBar(85.5, now), now)
	require.Equal(t, OK, outcome)

	series, ok := p.Store.Get("VCB")
	require.True(t, ok)
	require.Len(t, series, 1)
	assert.InDelta(t, 0, now.Sub(p.Watermark.Get()), float64(time.Millisecond))
}

// S2
func TestAuthenticatedIngest_WrongTokenRejectedAndStoreUntouched(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	outcome := p.AuthenticatedIngest("WRONG", vcbBar(85.5, now), now)
	assert.Equal(t, Unauthorized, outcome)
	_, ok := p.Store.Get("VCB")
	assert.False(t, ok)
}

// property 3: token interchangeability
func TestAuthenticatedIngest_SecondaryTokenAcceptedIdentically(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	outcome := p.AuthenticatedIngest("T2", vcbBar(85.5, now), now)
	assert.Equal(t, OK, outcome)
}

// property 2: idempotent replay
func TestAuthenticatedIngest_IdempotentReplay(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	b := vcbBar(85.5, now)

	require.Equal(t, OK, p.AuthenticatedIngest("T1", b, now))
	require.Equal(t, OK, p.AuthenticatedIngest("T1", b, now))

	series, _ := p.Store.Get("VCB")
	assert.Len(t, series, 1, "a duplicate timestamp must not append a second bar")
}

func TestAuthenticatedIngest_MissingSymbolIsBadRequest(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	b := vcbBar(85.5, now)
	b.Symbol = ""
	outcome := p.AuthenticatedIngest("T1", b, now)
	assert.Equal(t, BadRequest, outcome)
}

// S3
func TestPublicIngest_LargeMoveRejectedAndFailureRecorded(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	require.Equal(t, OK, p.AuthenticatedIngest("T1", vcbBar(85.5, base), base))

	outcome := p.PublicIngest("10.0.0.7", vcbBar(95.2, base.Add(time.Minute)), base.Add(time.Second))
	assert.Equal(t, BadRequest, outcome)

	actor, ok := p.Registry.Snapshot("10.0.0.7")
	require.True(t, ok)
	assert.Equal(t, uint32(1), actor.Failures)
	assert.Equal(t, reputation.Probation, actor.Status)

	series, _ := p.Store.Get("VCB")
	assert.Len(t, series, 1, "the series must be unchanged beyond the S1 commit")
}

// S4 / property 5
func TestPublicIngest_TrustStaleRejectsWithoutMutation(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	require.Equal(t, OK, p.AuthenticatedIngest("T1", vcbBar(85.5, base), base))

	outcome := p.PublicIngest("10.0.0.7", vcbBar(85.5, base.Add(time.Minute)), base.Add(301*time.Second))
	assert.Equal(t, Unavailable, outcome)

	// the ban check runs first and creates the actor lazily; the
	// trust-stale rejection must leave its success counter untouched
	actor, ok := p.Registry.Snapshot("10.0.0.7")
	require.True(t, ok)
	assert.Equal(t, uint32(0), actor.Successes, "a trust-stale rejection must not increment successes")

	series, _ := p.Store.Get("VCB")
	assert.Len(t, series, 1)
}

// S5
func TestPublicIngest_SixthFailureBansAndSeventhShortCircuits(t *testing.T) {
	p := newTestPipeline()
	base := time.Date(2025, 8, 14, 9, 30, 0, 0, time.UTC)
	require.Equal(t, OK, p.AuthenticatedIngest("T1", vcbBar(100, base), base))

	const addr = "10.0.0.8"
	for i := 1; i <= 5; i++ {
		outcome := p.PublicIngest(addr, vcbBar(120, base.Add(time.Duration(i)*time.Minute)), base.Add(time.Second))
		require.Equal(t, BadRequest, outcome)
		actor, _ := p.Registry.Snapshot(addr)
		assert.Equal(t, uint32(i), actor.Failures)
		assert.Equal(t, reputation.Probation, actor.Status)
	}

	// sixth failure bans
	outcome := p.PublicIngest(addr, vcbBar(120, base.Add(6*time.Minute)), base.Add(time.Second))
	require.Equal(t, BadRequest, outcome)
	actor, _ := p.Registry.Snapshot(addr)
	assert.Equal(t, reputation.Banned, actor.Status)

	// seventh: short-circuits on ban, price never consulted
	outcome = p.PublicIngest(addr, vcbBar(100, base.Add(7*time.Minute)), base.Add(time.Second))
	assert.Equal(t, Forbidden, outcome)
}

// property 6, accept-with-no-baseline open question pinned
func TestPublicIngest_NoBaselineAcceptsFirstWrite(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	p.Watermark.Advance(now)
	outcome := p.PublicIngest("10.0.0.9", vcbBar(9999, now), now)
	assert.Equal(t, OK, outcome, "a symbol with no prior bar has no baseline to violate")

	series, ok := p.Store.Get("VCB")
	require.True(t, ok)
	assert.Len(t, series, 1)
}

func TestPublicIngest_MissingSymbolIsBadRequest(t *testing.T) {
	p := newTestPipeline()
	now := time.Now()
	p.Watermark.Advance(now)

	b := vcbBar(100, now)
	b.Symbol = ""
	outcome := p.PublicIngest("10.0.0.9", b, now)
	assert.Equal(t, BadRequest, outcome)
}
