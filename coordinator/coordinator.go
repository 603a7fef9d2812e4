// Package coordinator drives workflows to completion. It selects ready
// steps, claims agents from the worker pool, invokes the external step
// executor, and records every transition as a domain event before the
// state machine folds it into the snapshot.
//
// Exactly one coordinator instance may drive a given workflow ID at a
// time; concurrent coordinators over the same workflow would double-emit
// StepStarted and double-assign agents. That exclusivity is an external
// precondition (a lease or single-owner deployment), not arbitrated here.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/backoff"
	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/store"
	"github.com/weftworks/loom/worker"
	"github.com/weftworks/loom/workflow"
)

// Coordinator orchestrates workflow execution over a store, a worker
// pool, and an external executor.
type Coordinator struct {
	store    store.Store
	pool     *worker.Pool
	executor Executor

	cfg     loom.Config
	bus     event.Bus
	bo      backoff.Strategy
	limiter *worker.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer

	// mu serializes event recording and guards the active-run registry.
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithConfig overrides the default tuning parameters.
func WithConfig(cfg loom.Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithBus sets the observability event bus. Publishing is fire-and-forget;
// the event log remains authoritative.
func WithBus(b event.Bus) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithBackoff sets the delay strategy for agent-assignment retries.
func WithBackoff(b backoff.Strategy) Option {
	return func(c *Coordinator) { c.bo = b }
}

// WithLimiter throttles step dispatch per specialty.
func WithLimiter(l *worker.Limiter) Option {
	return func(c *Coordinator) { c.limiter = l }
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer("github.com/weftworks/loom/coordinator")
	}
}

// New creates a Coordinator.
func New(s store.Store, pool *worker.Pool, executor Executor, opts ...Option) (*Coordinator, error) {
	if s == nil {
		return nil, loom.ErrNoStore
	}

	c := &Coordinator{
		store:    s,
		pool:     pool,
		executor: executor,
		cfg:      loom.DefaultConfig(),
		bus:      event.NopBus{},
		bo:       backoff.Default(),
		logger:   slog.Default(),
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/weftworks/loom/coordinator")
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Lifecycle operations
// ──────────────────────────────────────────────────

// Create registers a new workflow and takes its creation checkpoint at
// log position zero, so LatestCheckpoint is defined from the very first
// moment of a workflow's life.
func (c *Coordinator) Create(ctx context.Context, name string, steps ...workflow.Step) (*workflow.Workflow, error) {
	wf := workflow.New(name, steps...)
	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow %q: %w", name, err)
	}
	if err := c.store.SaveCheckpoint(ctx, workflow.NewCheckpoint(*wf, 0)); err != nil {
		return nil, fmt.Errorf("checkpoint workflow %q: %w", name, err)
	}

	c.logger.Info("workflow created",
		slog.String("workflow_id", wf.ID.String()),
		slog.String("name", name),
		slog.Int("steps", len(steps)),
	)
	return wf, nil
}

// Run drives the workflow until it reaches a terminal state, is paused,
// or the context is cancelled. Business failures (step errors, retry
// exhaustion) are recorded in the log and never returned; only
// infrastructure faults surface as errors.
func (c *Coordinator) Run(ctx context.Context, workflowID id.WorkflowID) error {
	r, err := c.load(ctx, workflowID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.track(workflowID, cancel)
	defer c.untrack(workflowID)

	for {
		if r.wf.State.Terminal() || r.wf.State == workflow.StatePaused {
			return nil
		}
		if err := runCtx.Err(); err != nil {
			return err
		}

		ready := c.readySteps(&r.wf)
		if len(ready) == 0 {
			return c.finalize(runCtx, r)
		}

		g, gctx := errgroup.WithContext(runCtx)
		for _, stepID := range ready {
			g.Go(func() error {
				return c.dispatchStep(gctx, r, stepID)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// Pause stops driving the workflow and records the pause. Progress is
// retained; Resume re-evaluates ready steps from the log. Any agents
// still bound to the workflow's steps are released as failures.
func (c *Coordinator) Pause(ctx context.Context, workflowID id.WorkflowID) error {
	c.cancelRun(workflowID)
	c.pool.ReleaseWorkflow(workflowID)

	r, err := c.load(ctx, workflowID)
	if err != nil {
		return err
	}
	if r.wf.State.Terminal() {
		return fmt.Errorf("pause %s: %w", workflowID, loom.ErrInvalidState)
	}
	return c.record(ctx, r, event.WorkflowPaused{WorkflowID: workflowID, At: time.Now().UTC()})
}

// Resume records WorkflowResumed for a paused workflow and drives it
// again. It is also the crash-recovery entry point: a workflow left in
// running state is driven without a resume event.
func (c *Coordinator) Resume(ctx context.Context, workflowID id.WorkflowID) error {
	r, err := c.load(ctx, workflowID)
	if err != nil {
		return err
	}
	if r.wf.State.Terminal() {
		return fmt.Errorf("resume %s: %w", workflowID, loom.ErrInvalidState)
	}
	if r.wf.State == workflow.StatePaused {
		if err := c.record(ctx, r, event.WorkflowResumed{WorkflowID: workflowID, At: time.Now().UTC()}); err != nil {
			return err
		}
	}
	return c.Run(ctx, workflowID)
}

// ResumeAll drives every workflow left in running state, typically after
// a process restart. Failures are collected, not short-circuited.
func (c *Coordinator) ResumeAll(ctx context.Context) error {
	running, err := c.store.ListWorkflows(ctx, workflow.ListOpts{State: workflow.StateRunning})
	if err != nil {
		return fmt.Errorf("list running workflows: %w", err)
	}

	var g errgroup.Group
	for _, wf := range running {
		c.logger.Info("resuming workflow", slog.String("workflow_id", wf.ID.String()))
		g.Go(func() error {
			return c.Resume(ctx, wf.ID)
		})
	}
	return g.Wait()
}

// Cancel aborts the workflow: the active run is stopped, every bound
// agent is released back to idle, and the workflow is finalized as
// failed. Cancellation must never leak busy agents.
func (c *Coordinator) Cancel(ctx context.Context, workflowID id.WorkflowID) error {
	c.cancelRun(workflowID)
	c.pool.ReleaseWorkflow(workflowID)

	r, err := c.load(ctx, workflowID)
	if err != nil {
		return err
	}
	if r.wf.State.Terminal() {
		return nil
	}
	return c.record(ctx, r, event.WorkflowFailed{WorkflowID: workflowID, At: time.Now().UTC()})
}

// ──────────────────────────────────────────────────
// Query surface
// ──────────────────────────────────────────────────

// Workflow returns the current snapshot reconstructed from the latest
// checkpoint and the event suffix. Reads never mutate the log.
func (c *Coordinator) Workflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	r, err := c.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	wf := r.wf.Clone()
	return &wf, nil
}

// PoolStatus returns a read-only snapshot of the worker pool.
func (c *Coordinator) PoolStatus() worker.Snapshot {
	return c.pool.Status()
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// run is the in-flight state for one driven workflow: the snapshot and
// the number of events applied into it.
type run struct {
	wf     workflow.Workflow
	events int
}

// load reconstructs a workflow's current state from the latest
// checkpoint plus the event suffix. A missing checkpoint falls back to
// the stored record (a workflow created outside this coordinator).
func (c *Coordinator) load(ctx context.Context, workflowID id.WorkflowID) (*run, error) {
	events, err := c.store.ListEvents(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", workflowID, err)
	}

	cp, err := c.store.LatestCheckpoint(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, loom.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("load checkpoint for %s: %w", workflowID, err)
		}
		// No checkpoint means the workflow was created directly in the
		// store. The stored record is the post-apply snapshot persisted
		// after every append, so it already reflects the whole log;
		// folding the log over it would apply history twice.
		wf, getErr := c.store.GetWorkflow(ctx, workflowID)
		if getErr != nil {
			return nil, getErr
		}
		return &run{wf: wf.Clone(), events: len(events)}, nil
	}

	return &run{wf: workflow.Replay(cp, events), events: len(events)}, nil
}

// record is the single write path: append to the log, fold into the
// snapshot, persist the record, publish for observers, and checkpoint on
// cadence. Serialized so concurrent step goroutines cannot interleave
// apply and append.
func (c *Coordinator) record(ctx context.Context, r *run, evt event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.store.AppendEvent(ctx, evt.Workflow(), evt)
	if err != nil {
		return fmt.Errorf("append %s: %w", evt.EventKind(), err)
	}

	// Another run recorded through its own snapshot since this one last
	// observed the log (a lifecycle operation racing an in-flight step).
	// Fold the missed suffix first, so the snapshot — and any checkpoint
	// taken at this position — stays a fold of the full event prefix.
	if pos > r.events {
		events, lerr := c.store.ListEvents(ctx, evt.Workflow())
		if lerr != nil {
			return fmt.Errorf("reload events for %s: %w", evt.Workflow(), lerr)
		}
		r.wf = workflow.Fold(r.wf, events[r.events:pos])
	}

	r.wf = workflow.Apply(r.wf, evt)
	r.events = pos + 1

	if err := c.store.UpdateWorkflow(ctx, &r.wf); err != nil {
		return fmt.Errorf("persist snapshot after %s: %w", evt.EventKind(), err)
	}

	c.bus.Publish(ctx, evt)

	if c.cfg.CheckpointEvery > 0 && r.events%c.cfg.CheckpointEvery == 0 {
		if err := c.checkpoint(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint snapshots the current state at the current log position and
// prunes history down to the retention window. Callers hold c.mu.
func (c *Coordinator) checkpoint(ctx context.Context, r *run) error {
	cp := workflow.NewCheckpoint(r.wf, r.events)
	if err := c.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint at %d: %w", r.events, err)
	}
	if c.cfg.CheckpointKeep > 0 {
		if err := c.store.PruneCheckpoints(ctx, r.wf.ID, c.cfg.CheckpointKeep); err != nil {
			c.logger.Warn("checkpoint prune failed",
				slog.String("workflow_id", r.wf.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// readySteps returns the IDs of steps eligible for dispatch: pending
// steps, plus failed steps still inside the retry budget, whose
// prerequisites (explicit DependsOn, or every preceding step in the
// ordered list) have all completed.
func (c *Coordinator) readySteps(wf *workflow.Workflow) []id.StepID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready []id.StepID
	for i, step := range wf.Steps {
		switch step.Status {
		case workflow.StepPending:
		case workflow.StepFailed:
			if step.RetryCount > c.cfg.MaxStepRetries {
				continue
			}
		default:
			continue
		}
		if c.prerequisitesMet(wf, i) {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

func (c *Coordinator) prerequisitesMet(wf *workflow.Workflow, idx int) bool {
	step := wf.Steps[idx]
	if len(step.DependsOn) > 0 {
		for _, depID := range step.DependsOn {
			dep := wf.StepByID(depID)
			if dep == nil || dep.Status != workflow.StepCompleted {
				return false
			}
		}
		return true
	}
	for _, prior := range wf.Steps[:idx] {
		if prior.Status != workflow.StepCompleted {
			return false
		}
	}
	return true
}

// dispatchStep claims an agent, records StepStarted, executes with the
// configured timeout, and records the outcome. Executor errors become
// StepFailed events, never returned errors.
func (c *Coordinator) dispatchStep(ctx context.Context, r *run, stepID id.StepID) error {
	step := c.stepSnapshot(r, stepID)
	if step == nil {
		return nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, step.Specialty); err != nil {
			return err
		}
	}

	agent, err := c.assign(ctx, r.wf.ID, stepID, step.Specialty)
	if err != nil {
		return err
	}

	if err := c.record(ctx, r, event.StepStarted{
		WorkflowID: r.wf.ID,
		StepID:     stepID,
		AgentID:    agent.ID,
		At:         time.Now().UTC(),
	}); err != nil {
		c.pool.Release(agent.ID, false, 0)
		return err
	}

	start := time.Now()
	output, execErr := c.execute(ctx, *step)
	elapsed := time.Since(start)

	if execErr != nil {
		c.pool.Release(agent.ID, false, elapsed)
		// A cancelled run (pause or cancel) aborts the step without
		// charging its retry budget.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.record(ctx, r, event.StepFailed{
			WorkflowID: r.wf.ID,
			StepID:     stepID,
			Reason:     execErr.Error(),
			At:         time.Now().UTC(),
		})
	}

	c.pool.Release(agent.ID, true, elapsed)
	// Same rule on the success path: the outcome of a step that outlived
	// its run is discarded, never appended behind the lifecycle event.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.record(ctx, r, event.StepCompleted{
		WorkflowID: r.wf.ID,
		StepID:     stepID,
		Output:     output,
		At:         time.Now().UTC(),
	})
}

// assign claims an idle agent, retrying pool exhaustion with backoff.
// Exhaustion is transient resource pressure, never a workflow failure.
func (c *Coordinator) assign(ctx context.Context, workflowID id.WorkflowID, stepID id.StepID, specialty string) (*worker.Agent, error) {
	for attempt := 1; ; attempt++ {
		agent, err := c.pool.Assign(workflowID, stepID, specialty)
		if err == nil {
			return agent, nil
		}

		var poolErr *loom.WorkerPoolError
		if !errors.As(err, &poolErr) {
			return nil, err
		}
		if c.cfg.AssignMaxAttempts > 0 && attempt >= c.cfg.AssignMaxAttempts {
			return nil, fmt.Errorf("assign step %s after %d attempts: %w", stepID, attempt, err)
		}

		c.logger.Debug("pool exhausted, retrying assignment",
			slog.String("workflow_id", workflowID.String()),
			slog.String("specialty", specialty),
			slog.Int("attempt", attempt),
		)
		if err := backoff.Sleep(ctx, c.bo, attempt); err != nil {
			return nil, err
		}
	}
}

// execute invokes the external executor under the per-step timeout.
// A deadline hit is reported as ErrStepTimeout so replayed histories can
// distinguish timeouts from executor-reported failures.
func (c *Coordinator) execute(ctx context.Context, step workflow.Step) ([]byte, error) {
	execCtx := ctx
	if c.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.cfg.StepTimeout)
		defer cancel()
	}

	execCtx, span := c.tracer.Start(execCtx, "loom.step.execute",
		trace.WithAttributes(
			attribute.String("loom.step.id", step.ID.String()),
			attribute.String("loom.step.name", step.Name),
			attribute.String("loom.step.specialty", step.Specialty),
		),
	)
	defer span.End()

	output, err := c.executor.Execute(execCtx, step, step.Input)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, loom.ErrStepTimeout
		}
		return nil, err
	}
	return output, nil
}

// finalize runs aggregate completion detection when no step is ready:
// all completed means WorkflowCompleted, an exhausted retry budget means
// WorkflowFailed, and anything else is an unsatisfiable dependency graph,
// also finalized as failed.
func (c *Coordinator) finalize(ctx context.Context, r *run) error {
	c.mu.Lock()
	allCompleted := true
	exhausted := false
	for _, step := range r.wf.Steps {
		if step.Status != workflow.StepCompleted {
			allCompleted = false
		}
		if step.Status == workflow.StepFailed && step.RetryCount > c.cfg.MaxStepRetries {
			exhausted = true
		}
	}
	wfID := r.wf.ID
	c.mu.Unlock()

	switch {
	case allCompleted:
		if err := c.record(ctx, r, event.WorkflowCompleted{WorkflowID: wfID, At: time.Now().UTC()}); err != nil {
			return err
		}
	case exhausted:
		c.logger.Warn("workflow failed: step retry budget exhausted",
			slog.String("workflow_id", wfID.String()),
		)
		if err := c.record(ctx, r, event.WorkflowFailed{WorkflowID: wfID, At: time.Now().UTC()}); err != nil {
			return err
		}
	default:
		c.logger.Warn("workflow stuck: no ready steps and no completion",
			slog.String("workflow_id", wfID.String()),
		)
		if err := c.record(ctx, r, event.WorkflowFailed{WorkflowID: wfID, At: time.Now().UTC()}); err != nil {
			return err
		}
	}

	// Terminal snapshot checkpoint so restart never replays a finished
	// workflow's full log.
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpoint(ctx, r)
}

// stepSnapshot returns a copy of the step under the record lock.
func (c *Coordinator) stepSnapshot(r *run, stepID id.StepID) *workflow.Step {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := r.wf.StepByID(stepID)
	if step == nil {
		return nil
	}
	cp := *step
	return &cp
}

func (c *Coordinator) track(workflowID id.WorkflowID, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[workflowID.String()] = cancel
}

func (c *Coordinator) untrack(workflowID id.WorkflowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, workflowID.String())
}

func (c *Coordinator) cancelRun(workflowID id.WorkflowID) {
	c.mu.Lock()
	cancel, ok := c.active[workflowID.String()]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}
