package auth

import (
	"context"
	"sync"
	"time"

	"companionlife/pkg/clock"
)

// RateLimiter decides whether key may make another call.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindowLimiter allows limit calls per key within any window.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	calls   map[string][]time.Time
	limit   int
	window  time.Duration
	clock   clock.Clock
	lastGC  time.Time
	gcEvery time.Duration
}

// NewSlidingWindowLimiter creates a limiter. A nil clock uses wall time.
func NewSlidingWindowLimiter(limit int, window time.Duration, clk clock.Clock) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &SlidingWindowLimiter{
		calls:   make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		clock:   clk,
		lastGC:  clk.Now(),
		gcEvery: 5 * time.Minute,
	}
}

// NewUserRateLimiter allows requestsPerMinute calls per caller.
func NewUserRateLimiter(requestsPerMinute int, clk clock.Clock) *SlidingWindowLimiter {
	return NewSlidingWindowLimiter(requestsPerMinute, time.Minute, clk)
}

// Allow records a call for key when under the limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	kept := prune(l.calls[key], cutoff)

	if now.Sub(l.lastGC) >= l.gcEvery {
		for k, ts := range l.calls {
			if k != key && len(prune(ts, cutoff)) == 0 {
				delete(l.calls, k)
			}
		}
		l.lastGC = now
	}

	if len(kept) >= l.limit {
		l.calls[key] = kept
		return false, nil
	}
	l.calls[key] = append(kept, now)
	return true, nil
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
