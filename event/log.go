package event

import (
	"context"

	"github.com/weftworks/loom/id"
)

// Log defines the append-only persistence contract for domain events.
// The log is the authoritative record of workflow history; nothing in it
// is ever mutated or deleted.
type Log interface {
	// AppendEvent adds an event to the per-workflow ordered log and
	// returns its 0-based position (the logical sequence number).
	AppendEvent(ctx context.Context, workflowID id.WorkflowID, evt Event) (int, error)

	// ListEvents returns the full ordered event history for a workflow.
	// An unknown workflow yields an empty slice, not an error.
	ListEvents(ctx context.Context, workflowID id.WorkflowID) ([]Event, error)
}
