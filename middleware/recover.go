package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/workflow"
)

// Recover returns middleware that recovers from panics in the executor.
// Panics are converted to errors and logged with a stack trace, so a
// misbehaving executor fails the step instead of crashing the run loop.
func Recover(logger *slog.Logger) Middleware {
	return func(next coordinator.Executor) coordinator.Executor {
		return coordinator.ExecutorFunc(func(ctx context.Context, step workflow.Step, input []byte) (output []byte, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("step executor panicked",
						slog.String("step_name", step.Name),
						slog.String("step_id", step.ID.String()),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					output = nil
					retErr = fmt.Errorf("panic in step %s: %v", step.Name, r)
				}
			}()
			return next.Execute(ctx, step, input)
		})
	}
}
