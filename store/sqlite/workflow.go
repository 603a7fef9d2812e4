package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/workflow"
)

// CreateWorkflow persists a new workflow record.
func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	m, err := toWorkflowModel(wf)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return loom.ErrWorkflowExists
		}
		return fmt.Errorf("loom/sqlite: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow record by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	m := new(workflowModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workflowID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loom.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("loom/sqlite: get workflow: %w", err)
	}
	return fromWorkflowModel(m)
}

// UpdateWorkflow persists changes to an existing workflow record.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	m, err := toWorkflowModel(wf)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("loom/sqlite: update workflow: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return loom.ErrWorkflowNotFound
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, ordered by
// creation time.
func (s *Store) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	var models []workflowModel
	q := s.db.NewSelect().Model(&models).Order("created_at ASC")
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("loom/sqlite: list workflows: %w", err)
	}

	workflows := make([]*workflow.Workflow, 0, len(models))
	for i := range models {
		wf, convErr := fromWorkflowModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// SaveCheckpoint appends to the workflow's checkpoint history.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("loom/sqlite: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the checkpoint with the greatest event index.
func (s *Store) LatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*workflow.Checkpoint, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).
		Where("workflow_id = ?", workflowID.String()).
		Order("event_index DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, loom.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("loom/sqlite: latest checkpoint: %w", err)
	}
	return fromCheckpointModel(m)
}

// ListCheckpoints returns the checkpoint history ordered by ascending
// event index.
func (s *Store) ListCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*workflow.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().Model(&models).
		Where("workflow_id = ?", workflowID.String()).
		Order("event_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: list checkpoints: %w", err)
	}

	checkpoints := make([]*workflow.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// PruneCheckpoints deletes all but the keep highest-index checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*checkpointModel)(nil)).
		Where("workflow_id = ?", workflowID.String()).
		Where(`id NOT IN (
			SELECT id FROM loom_checkpoints
			WHERE workflow_id = ?
			ORDER BY event_index DESC
			LIMIT ?
		)`, workflowID.String(), keep).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loom/sqlite: prune checkpoints: %w", err)
	}
	return nil
}

// isDuplicateKey checks for a SQLite unique constraint violation.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
