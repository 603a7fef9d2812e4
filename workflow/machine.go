package workflow

import (
	"github.com/weftworks/loom/event"
)

// Apply is the pure state-transition function: it maps a workflow snapshot
// and a domain event to a new snapshot. It is total and deterministic,
// never mutates its input, performs no I/O, and treats events referencing
// unknown steps — or event kinds this build does not recognize — as no-ops
// so replay never crashes on a stale or foreign event.
func Apply(wf Workflow, evt event.Event) Workflow {
	switch e := evt.(type) {
	case event.StepStarted:
		next := wf.Clone()
		step := next.StepByID(e.StepID)
		if step == nil {
			return wf
		}
		step.Status = StepRunning
		step.AgentID = e.AgentID
		at := e.At
		step.StartedAt = &at
		// First dispatch moves a pending workflow to running, so replayed
		// snapshots agree with the live coordinator's view.
		if next.State == StatePending {
			next.State = StateRunning
		}
		next.UpdatedAt = e.At
		return next

	case event.StepCompleted:
		next := wf.Clone()
		step := next.StepByID(e.StepID)
		if step == nil {
			return wf
		}
		step.Status = StepCompleted
		step.Output = e.Output
		step.Error = ""
		at := e.At
		step.CompletedAt = &at
		next.UpdatedAt = e.At
		return next

	case event.StepFailed:
		next := wf.Clone()
		step := next.StepByID(e.StepID)
		if step == nil {
			return wf
		}
		step.Status = StepFailed
		step.Error = e.Reason
		step.RetryCount++
		next.UpdatedAt = e.At
		return next

	case event.WorkflowCompleted:
		next := wf.Clone()
		next.State = StateCompleted
		at := e.At
		next.CompletedAt = &at
		next.UpdatedAt = e.At
		return next

	case event.WorkflowFailed:
		next := wf.Clone()
		next.State = StateFailed
		next.UpdatedAt = e.At
		return next

	case event.WorkflowPaused:
		next := wf.Clone()
		next.State = StatePaused
		next.UpdatedAt = e.At
		return next

	case event.WorkflowResumed:
		next := wf.Clone()
		next.State = StateRunning
		next.UpdatedAt = e.At
		return next

	default:
		// Unknown or future variant: forward-compatible no-op.
		return wf
	}
}

// Fold applies a sequence of events to a starting snapshot.
func Fold(wf Workflow, events []event.Event) Workflow {
	for _, evt := range events {
		wf = Apply(wf, evt)
	}
	return wf
}

// Replay reconstructs a workflow snapshot from a checkpoint and the full
// event history: it folds Apply over the suffix of events the checkpoint
// has not yet absorbed. It is pure and restartable — identical arguments
// always yield identical output.
func Replay(cp *Checkpoint, events []event.Event) Workflow {
	if cp.EventIndex >= len(events) {
		return cp.State.Clone()
	}
	return Fold(cp.State, events[cp.EventIndex:])
}
