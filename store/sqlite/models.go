package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/workflow"
)

// ── Workflow model ────────────────────────────────────────────────

type workflowModel struct {
	bun.BaseModel `bun:"table:loom_workflows"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	State       string     `bun:"state,notnull,default:'pending'"`
	Steps       []byte     `bun:"steps,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func toWorkflowModel(wf *workflow.Workflow) (*workflowModel, error) {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: encode steps: %w", err)
	}
	return &workflowModel{
		ID:          wf.ID.String(),
		Name:        wf.Name,
		State:       string(wf.State),
		Steps:       steps,
		CompletedAt: wf.CompletedAt,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}, nil
}

func fromWorkflowModel(m *workflowModel) (*workflow.Workflow, error) {
	parsedID, err := id.ParseWorkflowID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: parse workflow id %q: %w", m.ID, err)
	}

	var steps []workflow.Step
	if len(m.Steps) > 0 {
		if err := json.Unmarshal(m.Steps, &steps); err != nil {
			return nil, fmt.Errorf("loom/sqlite: decode steps: %w", err)
		}
	}

	return &workflow.Workflow{
		Entity: loom.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		State:       workflow.State(m.State),
		Steps:       steps,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	bun.BaseModel `bun:"table:loom_events"`

	WorkflowID string    `bun:"workflow_id,pk"`
	Position   int       `bun:"position,pk"`
	Kind       string    `bun:"kind,notnull"`
	Payload    []byte    `bun:"payload,notnull"`
	RecordedAt time.Time `bun:"recorded_at,notnull"`
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	bun.BaseModel `bun:"table:loom_checkpoints"`

	ID         string    `bun:"id,pk"`
	WorkflowID string    `bun:"workflow_id,notnull"`
	EventIndex int       `bun:"event_index,notnull"`
	State      []byte    `bun:"state,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func toCheckpointModel(cp *workflow.Checkpoint) (*checkpointModel, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: encode checkpoint state: %w", err)
	}
	return &checkpointModel{
		ID:         cp.ID.String(),
		WorkflowID: cp.WorkflowID.String(),
		EventIndex: cp.EventIndex,
		State:      state,
		CreatedAt:  cp.CreatedAt,
	}, nil
}

func fromCheckpointModel(m *checkpointModel) (*workflow.Checkpoint, error) {
	parsedID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: parse checkpoint id %q: %w", m.ID, err)
	}
	wfID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: parse workflow id %q: %w", m.WorkflowID, err)
	}

	var state workflow.Workflow
	if err := json.Unmarshal(m.State, &state); err != nil {
		return nil, fmt.Errorf("loom/sqlite: decode checkpoint state: %w", err)
	}

	return &workflow.Checkpoint{
		ID:         parsedID,
		WorkflowID: wfID,
		EventIndex: m.EventIndex,
		State:      state,
		CreatedAt:  m.CreatedAt,
	}, nil
}
