// Package middleware provides composable middleware for step execution.
// Middleware wraps an Executor synchronously and can modify execution
// (recover from panics, log, add tracing or metrics).
package middleware

import (
	"github.com/weftworks/loom/coordinator"
)

// Middleware wraps an Executor with cross-cutting logic.
type Middleware func(next coordinator.Executor) coordinator.Executor

// Chain composes multiple middleware around an executor. Middleware are
// applied right-to-left: the first middleware in the list is the
// outermost wrapper.
//
// Example: Chain(exec, logging, recovery) executes as:
//
//	logging → recovery → exec
func Chain(exec coordinator.Executor, mws ...Middleware) coordinator.Executor {
	for i := len(mws) - 1; i >= 0; i-- {
		exec = mws[i](exec)
	}
	return exec
}
