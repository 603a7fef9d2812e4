// Package workflow defines the workflow and step entities, the pure
// state-transition function over domain events, checkpoints, and the
// workflow store interface.
package workflow

import (
	"time"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
)

// State represents the lifecycle state of a workflow.
type State string

const (
	// StatePending means the workflow was created but nothing has been
	// dispatched yet.
	StatePending State = "pending"
	// StateRunning means at least one step has been dispatched.
	StateRunning State = "running"
	// StatePaused means the workflow was explicitly paused; progress is
	// preserved and it can be resumed.
	StatePaused State = "paused"
	// StateCompleted means every step finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the workflow was finalized as failed.
	StateFailed State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StepStatus represents the lifecycle status of a single step.
type StepStatus string

const (
	// StepPending means the step has not been dispatched.
	StepPending StepStatus = "pending"
	// StepRunning means the step is bound to an agent and executing.
	StepRunning StepStatus = "running"
	// StepCompleted means the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed means the step's last execution failed.
	StepFailed StepStatus = "failed"
)

// Workflow is a task decomposed into an ordered list of steps, tracked
// through a lifecycle state. During execution it is owned exclusively by
// one coordinator; persisted snapshots are immutable value copies.
type Workflow struct {
	loom.Entity

	ID          id.WorkflowID `json:"id"`
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Steps       []Step        `json:"steps"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Step is the smallest unit of dispatchable work within a workflow.
type Step struct {
	ID   id.StepID `json:"id"`
	Name string    `json:"name"`

	// Specialty is the agent tag required to execute this step.
	// Empty means any idle agent will do.
	Specialty string `json:"specialty,omitempty"`

	// DependsOn lists explicit prerequisite steps. When empty, the step
	// depends on every step that precedes it in the ordered list.
	DependsOn []id.StepID `json:"depends_on,omitempty"`

	// Input is the opaque context handed to the executor.
	Input []byte `json:"input,omitempty"`

	Status      StepStatus `json:"status"`
	AgentID     id.AgentID `json:"agent_id,omitempty"`
	Output      []byte     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending workflow with the given named steps, each pending
// with a fresh step ID.
func New(name string, steps ...Step) *Workflow {
	wf := &Workflow{
		Entity: loom.NewEntity(),
		ID:     id.NewWorkflowID(),
		Name:   name,
		State:  StatePending,
		Steps:  make([]Step, len(steps)),
	}
	for i, s := range steps {
		if s.ID.IsNil() {
			s.ID = id.NewStepID()
		}
		if s.Status == "" {
			s.Status = StepPending
		}
		wf.Steps[i] = s
	}
	return wf
}

// StepByID returns a pointer to the step with the given ID, or nil.
func (wf *Workflow) StepByID(stepID id.StepID) *Step {
	for i := range wf.Steps {
		if wf.Steps[i].ID == stepID {
			return &wf.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep value copy of the workflow. Shared byte slices are
// not copied; they are treated as immutable by convention (events never
// rewrite outputs in place).
func (wf Workflow) Clone() Workflow {
	cp := wf
	cp.Steps = make([]Step, len(wf.Steps))
	copy(cp.Steps, wf.Steps)
	for i := range cp.Steps {
		cp.Steps[i].DependsOn = append([]id.StepID(nil), cp.Steps[i].DependsOn...)
		if cp.Steps[i].StartedAt != nil {
			t := *cp.Steps[i].StartedAt
			cp.Steps[i].StartedAt = &t
		}
		if cp.Steps[i].CompletedAt != nil {
			t := *cp.Steps[i].CompletedAt
			cp.Steps[i].CompletedAt = &t
		}
	}
	if wf.CompletedAt != nil {
		t := *wf.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
