package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/weftworks/loom/retention"
	"github.com/weftworks/loom/store/memory"
	"github.com/weftworks/loom/workflow"
)

func seedWorkflow(t *testing.T, st *memory.Store, checkpoints int) *workflow.Workflow {
	t.Helper()
	ctx := context.Background()

	wf := workflow.New("seeded", workflow.Step{Name: "only"})
	if err := st.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	for i := range checkpoints {
		if err := st.SaveCheckpoint(ctx, workflow.NewCheckpoint(*wf, i)); err != nil {
			t.Fatalf("SaveCheckpoint %d: %v", i, err)
		}
	}
	return wf
}

func TestSweepPrunesToKeep(t *testing.T) {
	st := memory.New()
	wf := seedWorkflow(t, st, 7)

	s, err := retention.New(st, "@every 1h", retention.WithKeep(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	cps, err := st.ListCheckpoints(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 3 {
		t.Fatalf("len(checkpoints) = %d, want 3", len(cps))
	}
	// The newest snapshots survive.
	for i, cp := range cps {
		if want := 4 + i; cp.EventIndex != want {
			t.Fatalf("checkpoint[%d].EventIndex = %d, want %d", i, cp.EventIndex, want)
		}
	}
}

func TestSweepPagesThroughWorkflows(t *testing.T) {
	st := memory.New()
	var seeded []*workflow.Workflow
	for range 5 {
		seeded = append(seeded, seedWorkflow(t, st, 4))
	}

	s, err := retention.New(st, "@every 1h",
		retention.WithKeep(1),
		retention.WithPageSize(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, wf := range seeded {
		cps, err := st.ListCheckpoints(context.Background(), wf.ID)
		if err != nil {
			t.Fatalf("ListCheckpoints: %v", err)
		}
		if len(cps) != 1 {
			t.Fatalf("workflow %s: len(checkpoints) = %d, want 1", wf.ID, len(cps))
		}
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := retention.New(memory.New(), "not a schedule"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStartStopFiresSweep(t *testing.T) {
	st := memory.New()
	wf := seedWorkflow(t, st, 6)

	s, err := retention.New(st, "@every 10ms", retention.WithKeep(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		cps, err := st.ListCheckpoints(ctx, wf.ID)
		if err != nil {
			t.Fatalf("ListCheckpoints: %v", err)
		}
		if len(cps) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sweep never fired: %d checkpoints remain", len(cps))
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
