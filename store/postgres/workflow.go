package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/workflow"
)

// CreateWorkflow persists a new workflow record.
func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("loom/postgres: encode steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO loom_workflows (id, name, state, steps, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wf.ID.String(), wf.Name, string(wf.State), steps, wf.CompletedAt, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return loom.ErrWorkflowExists
		}
		return fmt.Errorf("loom/postgres: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow record by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, state, steps, completed_at, created_at, updated_at
		FROM loom_workflows WHERE id = $1`,
		workflowID.String(),
	)
	wf, err := scanWorkflow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, loom.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("loom/postgres: get workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow persists changes to an existing workflow record.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("loom/postgres: encode steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE loom_workflows
		SET name = $2, state = $3, steps = $4, completed_at = $5, updated_at = $6
		WHERE id = $1`,
		wf.ID.String(), wf.Name, string(wf.State), steps, wf.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("loom/postgres: update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return loom.ErrWorkflowNotFound
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, ordered by
// creation time.
func (s *Store) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	query := `
		SELECT id, name, state, steps, completed_at, created_at, updated_at
		FROM loom_workflows`
	args := []any{}
	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(opts.State))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loom/postgres: list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*workflow.Workflow
	for rows.Next() {
		wf, scanErr := scanWorkflow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("loom/postgres: scan workflow: %w", scanErr)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// SaveCheckpoint appends to the workflow's checkpoint history.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("loom/postgres: encode checkpoint state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO loom_checkpoints (id, workflow_id, event_index, state, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cp.ID.String(), cp.WorkflowID.String(), cp.EventIndex, state, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("loom/postgres: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the checkpoint with the greatest event index.
func (s *Store) LatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*workflow.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, event_index, state, created_at
		FROM loom_checkpoints
		WHERE workflow_id = $1
		ORDER BY event_index DESC
		LIMIT 1`,
		workflowID.String(),
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, loom.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("loom/postgres: latest checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns the checkpoint history ordered by ascending
// event index.
func (s *Store) ListCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, event_index, state, created_at
		FROM loom_checkpoints
		WHERE workflow_id = $1
		ORDER BY event_index ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("loom/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*workflow.Checkpoint
	for rows.Next() {
		cp, scanErr := scanCheckpoint(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("loom/postgres: scan checkpoint: %w", scanErr)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// PruneCheckpoints deletes all but the keep highest-index checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM loom_checkpoints
		WHERE workflow_id = $1
		AND id NOT IN (
			SELECT id FROM loom_checkpoints
			WHERE workflow_id = $1
			ORDER BY event_index DESC
			LIMIT $2
		)`,
		workflowID.String(), keep,
	)
	if err != nil {
		return fmt.Errorf("loom/postgres: prune checkpoints: %w", err)
	}
	return nil
}

// ── scan helpers ──

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*workflow.Workflow, error) {
	var (
		rawID, name, state string
		steps              []byte
		completedAt        *time.Time
		createdAt          time.Time
		updatedAt          time.Time
	)
	if err := row.Scan(&rawID, &name, &state, &steps, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	wfID, err := id.ParseWorkflowID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse workflow id %q: %w", rawID, err)
	}

	var parsedSteps []workflow.Step
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &parsedSteps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
	}

	return &workflow.Workflow{
		Entity: loom.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          wfID,
		Name:        name,
		State:       workflow.State(state),
		Steps:       parsedSteps,
		CompletedAt: completedAt,
	}, nil
}

func scanCheckpoint(row rowScanner) (*workflow.Checkpoint, error) {
	var (
		rawID, rawWorkflowID string
		eventIndex           int
		state                []byte
		createdAt            time.Time
	)
	if err := row.Scan(&rawID, &rawWorkflowID, &eventIndex, &state, &createdAt); err != nil {
		return nil, err
	}

	cpID, err := id.ParseCheckpointID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint id %q: %w", rawID, err)
	}
	wfID, err := id.ParseWorkflowID(rawWorkflowID)
	if err != nil {
		return nil, fmt.Errorf("parse workflow id %q: %w", rawWorkflowID, err)
	}

	var snapshot workflow.Workflow
	if err := json.Unmarshal(state, &snapshot); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}

	return &workflow.Checkpoint{
		ID:         cpID,
		WorkflowID: wfID,
		EventIndex: eventIndex,
		State:      snapshot,
		CreatedAt:  createdAt,
	}, nil
}
