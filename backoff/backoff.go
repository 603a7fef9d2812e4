// Package backoff provides retry delay strategies for step dispatch and
// worker assignment. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
// Attempt 1 is the first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Fixed always returns the same delay regardless of attempt number.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed-interval strategy.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{Interval: interval}
}

func (f *Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// Exponential grows the delay by Factor each attempt, capped at Max.
// Delay = min(Initial * Factor^(attempt-1), Max). A zero Factor is
// treated as 2.
type Exponential struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// NewExponential creates a doubling strategy capped at maxDelay.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Factor: 2, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	factor := e.Factor
	if factor <= 0 {
		factor = 2
	}
	d := time.Duration(float64(e.Initial) * math.Pow(factor, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// FullJitter draws a uniform delay in [0, exponential cap]. Spreading
// retries this way avoids synchronized reassignment storms when many
// steps fail at once.
type FullJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewFullJitter creates an exponential strategy with full jitter.
func NewFullJitter(initial, maxDelay time.Duration) *FullJitter {
	return &FullJitter{Initial: initial, Max: maxDelay}
}

func (j *FullJitter) Delay(attempt int) time.Duration {
	base := float64(j.Initial) * math.Pow(2, float64(attempt-1))
	if j.Max > 0 && base > float64(j.Max) {
		base = float64(j.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
}

// Default returns the strategy used when none is configured:
// full jitter over 200ms initial and 30s max.
func Default() Strategy {
	return NewFullJitter(200*time.Millisecond, 30*time.Second)
}

// Sleep blocks for the strategy's delay at the given attempt, returning
// early with ctx.Err() if the context is cancelled first.
func Sleep(ctx context.Context, s Strategy, attempt int) error {
	d := s.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
