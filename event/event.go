// Package event defines the closed set of domain events that drive workflow
// state, the append-only event log contract, and the observability bus.
//
// Events are immutable once appended. Within a single workflow's log the
// append sequence is a total order and is the only ordering replay may rely
// on; across workflows no ordering guarantee exists.
package event

import (
	"time"

	"github.com/weftworks/loom/id"
)

// Kind discriminates the domain event variants in the durable envelope.
type Kind string

// Kind constants for all domain event variants.
const (
	KindStepStarted       Kind = "step.started"
	KindStepCompleted     Kind = "step.completed"
	KindStepFailed        Kind = "step.failed"
	KindWorkflowCompleted Kind = "workflow.completed"
	KindWorkflowFailed    Kind = "workflow.failed"
	KindWorkflowPaused    Kind = "workflow.paused"
	KindWorkflowResumed   Kind = "workflow.resumed"
)

// Event is the closed sum of domain events. The unexported method seals the
// set to this package; unrecognized kinds decode as Unknown, which the state
// machine treats as a no-op for forward compatibility.
type Event interface {
	// EventKind returns the variant discriminator.
	EventKind() Kind
	// Workflow returns the workflow this event belongs to.
	Workflow() id.WorkflowID
	// Time returns the event timestamp.
	Time() time.Time

	domainEvent()
}

// StepStarted records that a step was dispatched to an agent.
type StepStarted struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	StepID     id.StepID     `json:"step_id"`
	AgentID    id.AgentID    `json:"agent_id"`
	At         time.Time     `json:"at"`
}

// StepCompleted records a successful step outcome with its output.
type StepCompleted struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	StepID     id.StepID     `json:"step_id"`
	Output     []byte        `json:"output,omitempty"`
	At         time.Time     `json:"at"`
}

// StepFailed records a failed step outcome. Reason carries the executor
// error (or the distinguished timeout reason) for diagnostics.
type StepFailed struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	StepID     id.StepID     `json:"step_id"`
	Reason     string        `json:"reason"`
	At         time.Time     `json:"at"`
}

// WorkflowCompleted records that every step of the workflow completed.
type WorkflowCompleted struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// WorkflowFailed records that the workflow was finalized as failed.
type WorkflowFailed struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// WorkflowPaused records an explicit pause (or cancellation that preserves
// progress).
type WorkflowPaused struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// WorkflowResumed records that a paused workflow went back to running.
type WorkflowResumed struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// Unknown is the decoded form of an event kind this build does not
// recognize. Applying it is a deliberate no-op so replay of logs written by
// newer versions never crashes.
type Unknown struct {
	RawKind    string        `json:"kind"`
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// EventKind implements Event.
func (e StepStarted) EventKind() Kind       { return KindStepStarted }
func (e StepCompleted) EventKind() Kind     { return KindStepCompleted }
func (e StepFailed) EventKind() Kind        { return KindStepFailed }
func (e WorkflowCompleted) EventKind() Kind { return KindWorkflowCompleted }
func (e WorkflowFailed) EventKind() Kind    { return KindWorkflowFailed }
func (e WorkflowPaused) EventKind() Kind    { return KindWorkflowPaused }
func (e WorkflowResumed) EventKind() Kind   { return KindWorkflowResumed }
func (e Unknown) EventKind() Kind           { return Kind(e.RawKind) }

// Workflow implements Event.
func (e StepStarted) Workflow() id.WorkflowID       { return e.WorkflowID }
func (e StepCompleted) Workflow() id.WorkflowID     { return e.WorkflowID }
func (e StepFailed) Workflow() id.WorkflowID        { return e.WorkflowID }
func (e WorkflowCompleted) Workflow() id.WorkflowID { return e.WorkflowID }
func (e WorkflowFailed) Workflow() id.WorkflowID    { return e.WorkflowID }
func (e WorkflowPaused) Workflow() id.WorkflowID    { return e.WorkflowID }
func (e WorkflowResumed) Workflow() id.WorkflowID   { return e.WorkflowID }
func (e Unknown) Workflow() id.WorkflowID           { return e.WorkflowID }

// Time implements Event.
func (e StepStarted) Time() time.Time       { return e.At }
func (e StepCompleted) Time() time.Time     { return e.At }
func (e StepFailed) Time() time.Time        { return e.At }
func (e WorkflowCompleted) Time() time.Time { return e.At }
func (e WorkflowFailed) Time() time.Time    { return e.At }
func (e WorkflowPaused) Time() time.Time    { return e.At }
func (e WorkflowResumed) Time() time.Time   { return e.At }
func (e Unknown) Time() time.Time           { return e.At }

func (StepStarted) domainEvent()       {}
func (StepCompleted) domainEvent()     {}
func (StepFailed) domainEvent()        {}
func (WorkflowCompleted) domainEvent() {}
func (WorkflowFailed) domainEvent()    {}
func (WorkflowPaused) domainEvent()    {}
func (WorkflowResumed) domainEvent()   {}
func (Unknown) domainEvent()           {}
