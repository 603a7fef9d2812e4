package worker_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/weftworks/loom/worker"
)

func TestLimiterAllowPerSpecialty(t *testing.T) {
	lim := worker.NewLimiter(rate.Every(time.Hour), 1)

	if !lim.Allow("research") {
		t.Fatal("first token for a specialty must be available")
	}
	if lim.Allow("research") {
		t.Error("burst exhausted, second Allow must fail")
	}
	// Buckets are independent per specialty.
	if !lim.Allow("coding") {
		t.Error("fresh specialty must have its own bucket")
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	lim := worker.NewLimiter(rate.Every(time.Hour), 1)
	if !lim.Allow("x") {
		t.Fatal("seed token missing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := lim.Wait(ctx, "x"); err == nil {
		t.Error("Wait must return an error when the context expires first")
	}
}

func TestLimiterWaitImmediate(t *testing.T) {
	lim := worker.NewLimiter(rate.Inf, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lim.Wait(ctx, "x"); err != nil {
		t.Fatalf("Wait with infinite rate: %v", err)
	}
}
