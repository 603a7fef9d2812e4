package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
)

// Pool is the shared agent registry. All mutation goes through single
// mutex-guarded operations so concurrent callers can never claim the same
// agent; the registry itself is never exposed.
//
// Agents are scanned in registration order, so "first idle match" is
// deterministic rather than an accident of map iteration.
type Pool struct {
	mu     sync.Mutex
	agents []*Agent
	logger *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the structured logger for the pool.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates an empty agent pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spawn creates and registers a new idle agent with a fresh identity and
// zero counters, and returns a copy of its record.
func (p *Pool) Spawn(specialty string) *Agent {
	agent := &Agent{
		ID:        id.NewAgentID(),
		Specialty: specialty,
		Status:    StatusIdle,
		CreatedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.agents = append(p.agents, agent)
	p.mu.Unlock()

	p.logger.Debug("agent spawned",
		slog.String("agent_id", agent.ID.String()),
		slog.String("specialty", specialty),
	)

	cp := *agent
	return &cp
}

// Assign atomically claims the first idle agent whose specialty matches
// (any idle agent when specialty is empty), binds it to the given workflow
// step, and returns a copy of the updated record. When no idle agent
// matches it returns a *loom.WorkerPoolError carrying the current idle
// count — transient exhaustion the caller retries with backoff.
func (p *Pool) Assign(workflowID id.WorkflowID, stepID id.StepID, specialty string) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	var claimed *Agent
	for _, a := range p.agents {
		if a.Status != StatusIdle {
			continue
		}
		idle++
		if claimed == nil && (specialty == "" || a.Specialty == specialty) {
			claimed = a
		}
	}

	if claimed == nil {
		// AvailableWorkers reports the idle count across all specialties;
		// with a specialty constraint none of them matched.
		return nil, &loom.WorkerPoolError{
			AvailableWorkers: idle,
			RequiredWorkers:  1,
			Specialty:        specialty,
		}
	}

	claimed.Status = StatusBusy
	claimed.CurrentWorkflowID = workflowID
	claimed.CurrentStepID = stepID

	p.logger.Debug("agent assigned",
		slog.String("agent_id", claimed.ID.String()),
		slog.String("workflow_id", workflowID.String()),
		slog.String("step_id", stepID.String()),
	)

	cp := *claimed
	return &cp, nil
}

// Release transitions a busy agent back to idle, clears its binding, and
// folds the observed latency into its running statistics. It never fails:
// an unknown or already idle agent ID is a safe no-op, so a step goroutine
// racing ReleaseWorkflow cannot count the same attempt twice.
func (p *Pool) Release(agentID id.AgentID, success bool, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release(agentID, success, latency)
}

// release is the lock-held body of Release.
func (p *Pool) release(agentID id.AgentID, success bool, latency time.Duration) {
	var agent *Agent
	for _, a := range p.agents {
		if a.ID == agentID {
			agent = a
			break
		}
	}
	if agent == nil || agent.Status != StatusBusy {
		return
	}

	agent.Status = StatusIdle
	agent.CurrentWorkflowID = id.Nil
	agent.CurrentStepID = id.Nil

	if success {
		agent.CompletedTasks++
	} else {
		agent.FailedTasks++
	}

	// Incremental running mean: avg' = (avg*(n-1) + latency) / n.
	n := agent.CompletedTasks + agent.FailedTasks
	ms := float64(latency) / float64(time.Millisecond)
	agent.AvgLatencyMs = (agent.AvgLatencyMs*float64(n-1) + ms) / float64(n)

	p.logger.Debug("agent released",
		slog.String("agent_id", agentID.String()),
		slog.Bool("success", success),
		slog.Float64("avg_latency_ms", agent.AvgLatencyMs),
	)
}

// ReleaseWorkflow releases every agent currently bound to a step of the
// given workflow. Cancellation uses it so paused or failed workflows never
// leak busy agents. Interrupted tasks count as failures with zero latency.
func (p *Pool) ReleaseWorkflow(workflowID id.WorkflowID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.agents {
		if a.Status == StatusBusy && a.CurrentWorkflowID == workflowID {
			p.release(a.ID, false, 0)
		}
	}
}

// Status returns a read-only snapshot of the registry: counts plus a copy
// of every agent record.
func (p *Pool) Status() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Total:  len(p.agents),
		Agents: make([]*Agent, len(p.agents)),
	}
	for i, a := range p.agents {
		cp := *a
		snap.Agents[i] = &cp
		if a.Status == StatusIdle {
			snap.Idle++
		} else {
			snap.Busy++
		}
	}
	return snap
}
