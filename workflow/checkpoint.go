package workflow

import (
	"time"

	"github.com/weftworks/loom/id"
)

// Checkpoint pairs a workflow snapshot with the log position it reflects,
// enabling bounded-cost replay after a restart. EventIndex means the
// snapshot is the result of applying events[0:EventIndex) of the log.
type Checkpoint struct {
	ID         id.CheckpointID `json:"id"`
	WorkflowID id.WorkflowID   `json:"workflow_id"`
	EventIndex int             `json:"event_index"`
	State      Workflow        `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewCheckpoint creates a checkpoint of the given snapshot at the given
// log position.
func NewCheckpoint(state Workflow, eventIndex int) *Checkpoint {
	return &Checkpoint{
		ID:         id.NewCheckpointID(),
		WorkflowID: state.ID,
		EventIndex: eventIndex,
		State:      state.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
}
