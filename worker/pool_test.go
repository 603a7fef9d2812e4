package worker_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/worker"
)

func TestSpawnRegistersIdleAgent(t *testing.T) {
	pool := worker.NewPool()

	agent := pool.Spawn("research")
	if agent.Status != worker.StatusIdle {
		t.Errorf("status = %q, want %q", agent.Status, worker.StatusIdle)
	}
	if agent.Specialty != "research" {
		t.Errorf("specialty = %q, want %q", agent.Specialty, "research")
	}
	if agent.CompletedTasks != 0 || agent.FailedTasks != 0 || agent.AvgLatencyMs != 0 {
		t.Error("new agent must have zero counters")
	}

	snap := pool.Status()
	if snap.Total != 1 || snap.Idle != 1 || snap.Busy != 0 {
		t.Errorf("snapshot = %+v, want 1 total, 1 idle", snap)
	}
}

func TestAssignClaimsAndExhausts(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("research")
	wfID := id.NewWorkflowID()

	agent, err := pool.Assign(wfID, id.NewStepID(), "research")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if agent.Status != worker.StatusBusy {
		t.Errorf("status = %q, want %q", agent.Status, worker.StatusBusy)
	}
	if agent.CurrentWorkflowID != wfID {
		t.Errorf("bound workflow = %q, want %q", agent.CurrentWorkflowID, wfID)
	}

	snap := pool.Status()
	if snap.Busy != 1 || snap.Idle != 0 {
		t.Errorf("snapshot = %+v, want 1 busy, 0 idle", snap)
	}

	// Second assignment for the same specialty must fail with pool stats.
	_, err = pool.Assign(wfID, id.NewStepID(), "research")
	var poolErr *loom.WorkerPoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("error = %v, want *loom.WorkerPoolError", err)
	}
	if poolErr.AvailableWorkers != 0 || poolErr.RequiredWorkers != 1 {
		t.Errorf("pool error = %+v, want available=0 required=1", poolErr)
	}
}

func TestAssignSpecialtyMismatch(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("coding")

	_, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "research")
	var poolErr *loom.WorkerPoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("error = %v, want *loom.WorkerPoolError", err)
	}
	if poolErr.AvailableWorkers != 1 {
		t.Errorf("available = %d, want 1 (one idle agent, wrong specialty)", poolErr.AvailableWorkers)
	}
}

func TestAssignEmptySpecialtyMatchesAny(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("coding")

	agent, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if agent.Specialty != "coding" {
		t.Errorf("specialty = %q, want %q", agent.Specialty, "coding")
	}
}

func TestAssignRegistrationOrder(t *testing.T) {
	pool := worker.NewPool()
	first := pool.Spawn("research")
	pool.Spawn("research")

	agent, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "research")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if agent.ID != first.ID {
		t.Errorf("claimed %q, want first registered %q", agent.ID, first.ID)
	}
}

func TestReleaseStatistics(t *testing.T) {
	pool := worker.NewPool()
	agent := pool.Spawn("research")

	if _, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "research"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	pool.Release(agent.ID, true, 120*time.Millisecond)

	snap := pool.Status()
	got := snap.Agents[0]
	if got.Status != worker.StatusIdle {
		t.Errorf("status = %q, want idle", got.Status)
	}
	if !got.CurrentWorkflowID.IsNil() || !got.CurrentStepID.IsNil() {
		t.Error("binding must be cleared on release")
	}
	if got.CompletedTasks != 1 {
		t.Errorf("completed = %d, want 1", got.CompletedTasks)
	}
	if math.Abs(got.AvgLatencyMs-120) > 1e-9 {
		t.Errorf("avg latency = %v, want 120", got.AvgLatencyMs)
	}

	// A failed release folds into the same running mean.
	if _, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "research"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	pool.Release(agent.ID, false, 80*time.Millisecond)
	got = pool.Status().Agents[0]
	if got.FailedTasks != 1 {
		t.Errorf("failed = %d, want 1", got.FailedTasks)
	}
	if math.Abs(got.AvgLatencyMs-100) > 1e-9 {
		t.Errorf("avg latency = %v, want 100", got.AvgLatencyMs)
	}
}

func TestReleaseRunningMean(t *testing.T) {
	pool := worker.NewPool()
	agent := pool.Spawn("x")

	latencies := []time.Duration{35 * time.Millisecond, 220 * time.Millisecond, 90 * time.Millisecond, 15 * time.Millisecond}
	var sum float64
	for _, l := range latencies {
		if _, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "x"); err != nil {
			t.Fatalf("assign: %v", err)
		}
		pool.Release(agent.ID, true, l)
		sum += float64(l) / float64(time.Millisecond)
	}

	want := sum / float64(len(latencies))
	got := pool.Status().Agents[0].AvgLatencyMs
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("avg latency = %v, want %v", got, want)
	}
}

func TestReleaseUnknownAgentIsNoOp(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("x")

	pool.Release(id.NewAgentID(), true, time.Second)

	snap := pool.Status()
	if snap.Agents[0].CompletedTasks != 0 {
		t.Error("unknown agent release must not touch other agents")
	}
}

func TestReleaseWorkflowClearsBindings(t *testing.T) {
	pool := worker.NewPool()
	a1 := pool.Spawn("x")
	a2 := pool.Spawn("x")
	wfID := id.NewWorkflowID()
	otherID := id.NewWorkflowID()

	if _, err := pool.Assign(wfID, id.NewStepID(), "x"); err != nil {
		t.Fatalf("assign a1: %v", err)
	}
	if _, err := pool.Assign(otherID, id.NewStepID(), "x"); err != nil {
		t.Fatalf("assign a2: %v", err)
	}

	pool.ReleaseWorkflow(wfID)

	snap := pool.Status()
	for _, a := range snap.Agents {
		switch a.ID {
		case a1.ID:
			if a.Status != worker.StatusIdle {
				t.Errorf("agent for cancelled workflow still %q", a.Status)
			}
		case a2.ID:
			if a.Status != worker.StatusBusy {
				t.Errorf("agent for other workflow released, status %q", a.Status)
			}
		}
	}
}

func TestAssignMutualExclusion(t *testing.T) {
	// One idle agent, many concurrent claimants: exactly one wins.
	pool := worker.NewPool()
	pool.Spawn("research")

	const claimants = 32
	var wg sync.WaitGroup
	wins := make(chan id.AgentID, claimants)

	for range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent, err := pool.Assign(id.NewWorkflowID(), id.NewStepID(), "research")
			if err == nil {
				wins <- agent.ID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("%d claimants succeeded, want exactly 1", count)
	}
}

func TestStatusSnapshotIsCopy(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("x")

	snap := pool.Status()
	snap.Agents[0].Specialty = "mutated"

	if pool.Status().Agents[0].Specialty != "x" {
		t.Error("snapshot mutation must not leak into the registry")
	}
}

func TestReleaseIdleAgentDoesNotDoubleCount(t *testing.T) {
	pool := worker.NewPool()
	pool.Spawn("research")
	wfID := id.NewWorkflowID()

	agent, err := pool.Assign(wfID, id.NewStepID(), "research")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Cancellation releases the whole workflow first; the step goroutine's
	// own release arrives later for an agent that is already idle.
	pool.ReleaseWorkflow(wfID)
	pool.Release(agent.ID, true, time.Second)

	snap := pool.Status()
	got := snap.Agents[0]
	if got.FailedTasks != 1 || got.CompletedTasks != 0 {
		t.Fatalf("counters = %d failed / %d completed, want 1 / 0",
			got.FailedTasks, got.CompletedTasks)
	}
	if got.AvgLatencyMs != 0 {
		t.Fatalf("avg latency = %v, want 0 (interrupted task)", got.AvgLatencyMs)
	}
}
