package workflow

import (
	"context"

	"github.com/weftworks/loom/id"
)

// ListOpts controls filtering and pagination for workflow list queries.
type ListOpts struct {
	// Limit is the maximum number of workflows to return. Zero means no limit.
	Limit int
	// Offset is the number of workflows to skip.
	Offset int
	// State filters by workflow state. Empty means all states.
	State State
}

// Store defines the persistence contract for workflows and their
// checkpoint histories.
type Store interface {
	// CreateWorkflow persists a new workflow record.
	// Returns loom.ErrWorkflowExists if the ID is already registered.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflow retrieves a workflow record by ID.
	// Returns loom.ErrWorkflowNotFound if absent.
	GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*Workflow, error)

	// UpdateWorkflow persists changes to an existing workflow record.
	UpdateWorkflow(ctx context.Context, wf *Workflow) error

	// ListWorkflows returns workflows matching the given options, ordered
	// by creation time.
	ListWorkflows(ctx context.Context, opts ListOpts) ([]*Workflow, error)

	// SaveCheckpoint appends to the workflow's checkpoint history. It
	// never deduplicates; retention is a separate pruning concern.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// LatestCheckpoint returns the checkpoint with the greatest
	// EventIndex for the workflow, or loom.ErrCheckpointNotFound if the
	// workflow has no checkpoint yet (a normal first-run condition).
	LatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*Checkpoint, error)

	// ListCheckpoints returns the workflow's checkpoint history ordered
	// by ascending EventIndex.
	ListCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*Checkpoint, error)

	// PruneCheckpoints deletes all but the keep most recent checkpoints
	// (by EventIndex) for the workflow.
	PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error
}
