package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/workflow"
)

// shellExecutor treats a step's input as a shell command line and runs
// it under the step context, so timeouts and cancellation kill the
// process. Combined output becomes the step output.
func shellExecutor(logger *slog.Logger) coordinator.ExecutorFunc {
	return func(ctx context.Context, step workflow.Step, input []byte) ([]byte, error) {
		if len(input) == 0 {
			return nil, fmt.Errorf("step %q has no command", step.Name)
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", string(input))
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		logger.Debug("executing step command",
			slog.String("step", step.Name),
			slog.String("command", string(input)),
		)

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(out.Bytes()))
		}
		return bytes.TrimSpace(out.Bytes()), nil
	}
}
