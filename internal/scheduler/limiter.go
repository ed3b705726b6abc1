package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// UpstreamLimiter throttles outbound upstream fetches per activity id,
// so a single runaway device can't exceed the provider's rate limit on
// its own.
type UpstreamLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewUpstreamLimiter builds a limiter allowing r fetches/sec per id with
// the given burst.
func NewUpstreamLimiter(r float64, burst int) *UpstreamLimiter {
	return &UpstreamLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		burst:    burst,
	}
}

// Allow reports whether id may fetch right now, creating a fresh bucket
// on first use.
func (l *UpstreamLimiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[id]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[id] = lim
	}
	return lim.Allow()
}

// Forget drops the bucket for id, called when an activity terminates so
// the map doesn't grow unbounded across the server's lifetime.
func (l *UpstreamLimiter) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, id)
}
