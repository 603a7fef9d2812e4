package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/weftworks/loom/backoff"
)

func TestFixed_ReturnsSameDelay(t *testing.T) {
	f := backoff.NewFixed(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := f.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped)", got, 10*time.Second)
	}
}

func TestExponential_CustomFactor(t *testing.T) {
	e := &backoff.Exponential{Initial: time.Second, Factor: 3, Max: time.Hour}

	if got := e.Delay(3); got != 9*time.Second {
		t.Errorf("Delay(3) = %v, want 9s with factor 3", got)
	}
}

func TestFullJitter_WithinBounds(t *testing.T) {
	j := backoff.NewFullJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := j.Delay(attempt)
			if got < 0 {
				t.Errorf("Delay(%d) = %v, should be >= 0", attempt, got)
			}
			if got > 10*time.Second {
				t.Errorf("Delay(%d) = %v, should be <= 10s", attempt, got)
			}
		}
	}
}

func TestFullJitter_ProducesVariance(t *testing.T) {
	j := backoff.NewFullJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[j.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got %d distinct values", len(seen))
	}
}

func TestDefault_PositiveBoundedDelay(t *testing.T) {
	s := backoff.Default()
	if s == nil {
		t.Fatal("Default() returned nil")
	}
	d := s.Delay(1)
	if d < 0 {
		t.Errorf("Delay(1) = %v, should be >= 0", d)
	}
	if d > 200*time.Millisecond {
		t.Errorf("Delay(1) = %v, should be <= 200ms initial", d)
	}
}

func TestSleep_CompletesDelay(t *testing.T) {
	start := time.Now()
	err := backoff.Sleep(context.Background(), backoff.NewFixed(10*time.Millisecond), 1)
	if err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("returned after %v, want >= 10ms", elapsed)
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backoff.Sleep(ctx, backoff.NewFixed(time.Hour), 1)
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
