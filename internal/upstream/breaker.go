package upstream

import (
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker wraps the Upstream Client's calls in a circuit breaker
// so a prolonged upstream outage stops issuing doomed retried
// requests, adapted from the teacher's infra/breakers.Breaker (a thin
// sony/gobreaker wrapper). It does not change §4.1's retry count or
// backoff — the breaker sits outside the retry loop, tripping only
// across many fetch calls, not within a single one.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}
