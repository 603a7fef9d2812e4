package loom

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("loom: no store configured")
	ErrStoreClosed = errors.New("loom: store closed")

	// Not found errors.
	ErrWorkflowNotFound   = errors.New("loom: workflow not found")
	ErrCheckpointNotFound = errors.New("loom: checkpoint not found")
	ErrAgentNotFound      = errors.New("loom: agent not found")

	// Conflict errors.
	ErrWorkflowExists = errors.New("loom: workflow already exists")

	// State errors.
	ErrInvalidState       = errors.New("loom: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("loom: max step retries exceeded")

	// ErrStepTimeout marks a step failure caused by the per-step execution
	// deadline rather than the executor itself. It is recorded in the
	// StepFailed event reason so replay preserves the distinction.
	ErrStepTimeout = errors.New("loom: step execution timed out")
)

// WorkerPoolError reports that no idle agent matched an assignment request.
// It is transient resource exhaustion: callers retry with backoff rather
// than failing the workflow.
type WorkerPoolError struct {
	AvailableWorkers int
	RequiredWorkers  int
	Specialty        string
}

// Error implements the error interface.
func (e *WorkerPoolError) Error() string {
	if e.Specialty != "" {
		return fmt.Sprintf("loom: no idle agent with specialty %q (available=%d required=%d)",
			e.Specialty, e.AvailableWorkers, e.RequiredWorkers)
	}
	return fmt.Sprintf("loom: no idle agent (available=%d required=%d)",
		e.AvailableWorkers, e.RequiredWorkers)
}
