package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/workflow"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ workflow.Store = (*Store)(nil)
	_ event.Log      = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	workflows   map[string]*workflow.Workflow
	events      map[string][]event.Event          // key: workflow ID, append-only
	checkpoints map[string][]*workflow.Checkpoint // key: workflow ID
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		workflows:   make(map[string]*workflow.Workflow),
		events:      make(map[string][]event.Event),
		checkpoints: make(map[string][]*workflow.Checkpoint),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateWorkflow persists a new workflow record.
func (m *Store) CreateWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := wf.ID.String()
	if _, exists := m.workflows[key]; exists {
		return loom.ErrWorkflowExists
	}
	cp := wf.Clone()
	m.workflows[key] = &cp
	return nil
}

// GetWorkflow retrieves a workflow record by ID.
func (m *Store) GetWorkflow(_ context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[workflowID.String()]
	if !ok {
		return nil, loom.ErrWorkflowNotFound
	}
	cp := wf.Clone()
	return &cp, nil
}

// UpdateWorkflow persists changes to an existing workflow record.
func (m *Store) UpdateWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := wf.ID.String()
	if _, ok := m.workflows[key]; !ok {
		return loom.ErrWorkflowNotFound
	}
	cp := wf.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.workflows[key] = &cp
	return nil
}

// ListWorkflows returns workflows matching the given options.
func (m *Store) ListWorkflows(_ context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		if opts.State != "" && wf.State != opts.State {
			continue
		}
		cp := wf.Clone()
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Checkpoint history
// ──────────────────────────────────────────────────

// SaveCheckpoint appends to the workflow's checkpoint history.
func (m *Store) SaveCheckpoint(_ context.Context, cp *workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cp.WorkflowID.String()
	stored := *cp
	stored.State = cp.State.Clone()
	m.checkpoints[key] = append(m.checkpoints[key], &stored)
	return nil
}

// LatestCheckpoint returns the checkpoint with the greatest EventIndex.
func (m *Store) LatestCheckpoint(_ context.Context, workflowID id.WorkflowID) (*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[workflowID.String()]
	if len(history) == 0 {
		return nil, loom.ErrCheckpointNotFound
	}

	latest := history[0]
	for _, cp := range history[1:] {
		if cp.EventIndex > latest.EventIndex {
			latest = cp
		}
	}

	out := *latest
	out.State = latest.State.Clone()
	return &out, nil
}

// ListCheckpoints returns the checkpoint history ordered by ascending
// EventIndex.
func (m *Store) ListCheckpoints(_ context.Context, workflowID id.WorkflowID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.checkpoints[workflowID.String()]
	result := make([]*workflow.Checkpoint, 0, len(history))
	for _, cp := range history {
		out := *cp
		out.State = cp.State.Clone()
		result = append(result, &out)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].EventIndex < result[k].EventIndex
	})

	return result, nil
}

// PruneCheckpoints deletes all but the keep most recent checkpoints.
func (m *Store) PruneCheckpoints(_ context.Context, workflowID id.WorkflowID, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workflowID.String()
	history := m.checkpoints[key]
	if keep <= 0 || len(history) <= keep {
		return nil
	}

	sorted := make([]*workflow.Checkpoint, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, k int) bool {
		return sorted[i].EventIndex < sorted[k].EventIndex
	})

	m.checkpoints[key] = sorted[len(sorted)-keep:]
	return nil
}

// ──────────────────────────────────────────────────
// Event Log
// ──────────────────────────────────────────────────

// AppendEvent adds an event to the per-workflow ordered log and returns
// its 0-based position.
func (m *Store) AppendEvent(_ context.Context, workflowID id.WorkflowID, evt event.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workflowID.String()
	m.events[key] = append(m.events[key], evt)
	return len(m.events[key]) - 1, nil
}

// ListEvents returns the full ordered event history for a workflow.
func (m *Store) ListEvents(_ context.Context, workflowID id.WorkflowID) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.events[workflowID.String()]
	result := make([]event.Event, len(log))
	copy(result, log)
	return result, nil
}
