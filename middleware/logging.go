package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/workflow"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(next coordinator.Executor) coordinator.Executor {
		return coordinator.ExecutorFunc(func(ctx context.Context, step workflow.Step, input []byte) ([]byte, error) {
			logger.Info("step started",
				slog.String("step_name", step.Name),
				slog.String("step_id", step.ID.String()),
				slog.String("specialty", step.Specialty),
			)

			start := time.Now()
			output, err := next.Execute(ctx, step, input)
			elapsed := time.Since(start)

			if err != nil {
				logger.Error("step failed",
					slog.String("step_name", step.Name),
					slog.String("step_id", step.ID.String()),
					slog.Duration("elapsed", elapsed),
					slog.String("error", err.Error()),
				)
			} else {
				logger.Info("step completed",
					slog.String("step_name", step.Name),
					slog.String("step_id", step.ID.String()),
					slog.Duration("elapsed", elapsed),
				)
			}
			return output, err
		})
	}
}
