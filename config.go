package loom

import "time"

// Config holds tuning parameters for the orchestration coordinator.
type Config struct {
	// MaxStepRetries is the number of times a failed step is re-queued
	// before the workflow is finalized as failed.
	MaxStepRetries int

	// StepTimeout is the per-step execution deadline. A step that exceeds
	// it is recorded as failed with ErrStepTimeout as the reason.
	StepTimeout time.Duration

	// CheckpointEvery bounds replay cost: a checkpoint is saved after
	// every N appended events. Zero disables periodic checkpointing
	// (checkpoints are still taken at workflow creation and completion).
	CheckpointEvery int

	// AssignMaxAttempts caps how many times the coordinator retries agent
	// assignment for one step before surfacing the pool exhaustion as an
	// infrastructure error. Zero means retry until the context expires.
	AssignMaxAttempts int

	// CheckpointKeep is the number of most recent checkpoints retained
	// per workflow when pruning.
	CheckpointKeep int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxStepRetries:    3,
		StepTimeout:       5 * time.Minute,
		CheckpointEvery:   5,
		AssignMaxAttempts: 10,
		CheckpointKeep:    5,
	}
}
