package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/workflow"
)

// tracerName is the instrumentation scope name for loom tracing.
const tracerName = "github.com/weftworks/loom/middleware"

// Tracing returns middleware that wraps step execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(next coordinator.Executor) coordinator.Executor {
		return coordinator.ExecutorFunc(func(ctx context.Context, step workflow.Step, input []byte) ([]byte, error) {
			ctx, span := tracer.Start(ctx, "loom.executor.execute",
				trace.WithAttributes(
					attribute.String("loom.step.id", step.ID.String()),
					attribute.String("loom.step.name", step.Name),
					attribute.String("loom.step.specialty", step.Specialty),
					attribute.Int("loom.step.retry_count", step.RetryCount),
				),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			output, err := next.Execute(ctx, step, input)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return output, err
		})
	}
}
