package upstream

import (
	"context"
	"sync"
	"time"
)

// slidingWindowLimiter enforces "no more than limit sends in any
// rolling 60s window" (§4.1, §8 property 7) by tracking the
// timestamps of admitted sends and pruning anything older than the
// window on every check — unlike the teacher's kraken.RateLimiter
// (a token bucket refilled at a fixed rate), the spec calls for an
// explicit sliding window of send timestamps.
type slidingWindowLimiter struct {
	mu        sync.Mutex
	sends     []time.Time
	limit     int
	window    time.Duration
	nowFunc   func() time.Time
	sleepFunc func(context.Context, time.Duration) error
}

func newSlidingWindowLimiter(limitPerMinute int) *slidingWindowLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return &slidingWindowLimiter{
		limit:     limitPerMinute,
		window:    60 * time.Second,
		nowFunc:   time.Now,
		sleepFunc: ctxSleep,
	}
}

// Admit blocks until a send is permitted under the rolling 60s
// window, then records it. It loops: prune expired timestamps, and
// if the window is still full, sleep until the oldest survivor
// expires (+100ms guard) before re-checking (§4.1).
func (l *slidingWindowLimiter) Admit(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.nowFunc()
		l.prune(now)

		if len(l.sends) < l.limit {
			l.sends = append(l.sends, now)
			l.mu.Unlock()
			return nil
		}

		oldest := l.sends[0]
		wait := oldest.Add(l.window).Add(100 * time.Millisecond).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

// prune removes timestamps older than the window. Callers must hold
// l.mu.
func (l *slidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sends) && l.sends[i].Before(cutoff) {
		i++
	}
	l.sends = l.sends[i:]
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
