// Package worker provides the executor agent registry — a pool of
// interchangeable, specialty-tagged agents matched to workflow steps on
// demand, with atomic claim/release and running utilization statistics.
package worker

import (
	"time"

	"github.com/weftworks/loom/id"
)

// Status represents the availability of an agent.
type Status string

const (
	// StatusIdle means the agent is available for assignment.
	StatusIdle Status = "idle"
	// StatusBusy means the agent is bound to exactly one workflow step.
	StatusBusy Status = "busy"
)

// Agent is one executor in the pool. Its Status and binding fields are
// always consistent: busy implies both CurrentWorkflowID and CurrentStepID
// are set, idle implies both are unset.
type Agent struct {
	ID        id.AgentID `json:"id"`
	Specialty string     `json:"specialty"`
	Status    Status     `json:"status"`

	CurrentWorkflowID id.WorkflowID `json:"current_workflow_id,omitempty"`
	CurrentStepID     id.StepID     `json:"current_step_id,omitempty"`

	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`

	// AvgLatencyMs is the running mean latency over every release,
	// successful or not.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the read-only view of the pool returned by Status queries.
type Snapshot struct {
	Total  int      `json:"total"`
	Idle   int      `json:"idle"`
	Busy   int      `json:"busy"`
	Agents []*Agent `json:"agents"`
}
