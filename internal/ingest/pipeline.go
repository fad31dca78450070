// Package ingest implements the Ingestion Pipeline (§4.4): the two
// admission paths — internal-authenticated and public-reputation-gated
// — that validate and commit a single bar to the Symbol Store. Both
// paths return a categorized Outcome rather than an error, so the same
// decision is usable by the HTTP response mapper and by tests (§9
// "failure-as-values").
package ingest

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vnmarket/internal/bar"
	"github.com/sawpanic/vnmarket/internal/reputation"
	"github.com/sawpanic/vnmarket/internal/store"
)

// Outcome is the categorized result of an ingestion attempt (§7).
type Outcome int

const (
	OK Outcome = iota
	Unauthorized
	BadRequest
	Forbidden
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Unauthorized:
		return "unauthorized"
	case BadRequest:
		return "bad-request"
	case Forbidden:
		return "forbidden"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// trustWindow is the closed constant from §4.4 step 2: a public
// ingest is rejected once the watermark is more than this stale.
const trustWindow = 300 * time.Second

// priceGuardThreshold is the closed constant from §4.4 step 4: a
// public bar whose close deviates from the last close by more than
// this fraction is rejected.
const priceGuardThreshold = 0.10

// Tokens is the two-token set from §3: both are simultaneously valid,
// supporting overlap-rotation deployments.
type Tokens struct {
	Primary   string
	Secondary string
}

// Valid reports whether token matches either configured token (§8
// property 3: "token interchangeability").
func (t Tokens) Valid(token string) bool {
	return token != "" && (token == t.Primary || token == t.Secondary)
}

// Pipeline wires the shared stores the two admission paths operate
// on, built once at startup and held by the HTTP layer (§9 "a
// startup-built context value passed by shared reference").
type Pipeline struct {
	Store     *store.Store
	Registry  *reputation.Registry
	Watermark *Watermark
	Tokens    Tokens
	Log       zerolog.Logger
}

// New constructs a Pipeline.
func New(s *store.Store, r *reputation.Registry, w *Watermark, tokens Tokens, log zerolog.Logger) *Pipeline {
	return &Pipeline{Store: s, Registry: r, Watermark: w, Tokens: tokens, Log: log}
}

// AuthenticatedIngest runs the internal-authenticated admission path
// (§4.4 "Authenticated ingest"). now is the wall-clock time used to
// advance the trust watermark, injected for tests.
func (p *Pipeline) AuthenticatedIngest(token string, payload bar.Bar, now time.Time) Outcome {
	if !p.Tokens.Valid(token) {
		return Unauthorized
	}

	p.Watermark.Advance(now)

	if payload.Symbol == "" {
		return BadRequest
	}

	p.Store.AppendIfNewer(payload.Symbol, payload)
	return OK
}

// PublicIngest runs the public-reputation-gated admission path (§4.4
// "Public ingest"). The order of checks is fixed: ban, trust-window,
// symbol, price, commit.
func (p *Pipeline) PublicIngest(source string, payload bar.Bar, now time.Time) Outcome {
	decision, actor := p.Registry.Admit(source)
	if decision == reputation.RejectBanned {
		return Forbidden
	}

	if p.Watermark.StaleSince(now) > trustWindow {
		return Unavailable
	}

	if payload.Symbol == "" {
		return BadRequest
	}

	// Baseline lookup (§4.4 step 4). Absence of a prior bar is not a
	// rejection: the source accepts first-write for a symbol on the
	// public path (§8 Open Question, pinned here as "accept").
	if last, ok := p.Store.LastBar(payload.Symbol); ok {
		delta := bar.PriceDelta(last, payload)
		if delta > priceGuardThreshold {
			if banned := p.Registry.RecordFailure(actor); banned {
				p.Log.Warn().Str("source", source).Str("symbol", payload.Symbol).Msg("ingest: actor banned after price-guard rejection")
			}
			return BadRequest
		}
	}

	p.Registry.RecordSuccess(actor)
	p.Store.AppendSorted(payload.Symbol, payload)
	return OK
}
