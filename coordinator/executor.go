package coordinator

import (
	"context"

	"github.com/weftworks/loom/workflow"
)

// Executor is the external step-execution capability. Implementations may
// block; the coordinator applies the configured per-step timeout around
// every call. The step value is a snapshot — mutations are not observed.
type Executor interface {
	Execute(ctx context.Context, step workflow.Step, input []byte) ([]byte, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, step workflow.Step, input []byte) ([]byte, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, step workflow.Step, input []byte) ([]byte, error) {
	return f(ctx, step, input)
}
