package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles step dispatch per specialty. Each specialty gets its
// own token bucket, created lazily on first use, so a burst of steps for
// one specialty cannot starve executor capacity for the others.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLimiter creates a Limiter allowing the given sustained dispatch rate
// and burst per specialty.
func NewLimiter(limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until the specialty's bucket grants a token or the context
// is done. The empty specialty shares one bucket.
func (l *Limiter) Wait(ctx context.Context, specialty string) error {
	return l.limiter(specialty).Wait(ctx)
}

// Allow reports whether a dispatch may proceed immediately without waiting.
func (l *Limiter) Allow(specialty string) bool {
	return l.limiter(specialty).Allow()
}

func (l *Limiter) limiter(specialty string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[specialty]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[specialty] = lim
	}
	return lim
}
