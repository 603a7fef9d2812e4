// Package observability exports workflow activity as OpenTelemetry
// metrics. It subscribes to the domain event stream as a bus sink, so
// instrumentation never touches the write path: the event log stays
// authoritative and metrics are derived, best-effort state.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/weftworks/loom/event"
)

// meterName is the instrumentation scope name for loom metrics.
const meterName = "github.com/weftworks/loom"

// MetricsBus is an event.Bus sink that counts domain events.
//
// Instruments:
//   - loom.events (Int64Counter): every published domain event,
//     with attribute: kind
//   - loom.steps.finished (Int64Counter): step outcomes,
//     with attribute: outcome ("completed" or "failed")
//   - loom.workflows.finished (Int64Counter): workflow outcomes,
//     with attribute: outcome ("completed" or "failed")
type MetricsBus struct {
	events    metric.Int64Counter
	steps     metric.Int64Counter
	workflows metric.Int64Counter
}

var _ event.Bus = (*MetricsBus)(nil)

// Metrics returns a bus sink backed by the global OTel MeterProvider. If
// no MeterProvider is configured, noop instruments are used and the sink
// becomes a pass-through.
func Metrics() *MetricsBus {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns a bus sink using the provided meter. This
// variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) *MetricsBus {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the sink degrades gracefully.
	events, eErr := meter.Int64Counter(
		"loom.events",
		metric.WithDescription("Total number of published domain events"),
		metric.WithUnit("{event}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	steps, sErr := meter.Int64Counter(
		"loom.steps.finished",
		metric.WithDescription("Total number of finished steps"),
		metric.WithUnit("{step}"),
	)
	_ = sErr

	workflows, wErr := meter.Int64Counter(
		"loom.workflows.finished",
		metric.WithDescription("Total number of finished workflows"),
		metric.WithUnit("{workflow}"),
	)
	_ = wErr

	return &MetricsBus{events: events, steps: steps, workflows: workflows}
}

// Publish implements event.Bus.
func (m *MetricsBus) Publish(ctx context.Context, evt event.Event) {
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(evt.EventKind())),
	))

	switch evt.EventKind() {
	case event.KindStepCompleted:
		m.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	case event.KindStepFailed:
		m.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	case event.KindWorkflowCompleted:
		m.workflows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	case event.KindWorkflowFailed:
		m.workflows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	}
}
