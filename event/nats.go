package event

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes domain events to a NATS subject hierarchy for external
// observers. Subjects are "<prefix>.<workflow_id>" so consumers can
// subscribe to one workflow or wildcard across all of them.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NATSOption configures a NATSBus.
type NATSOption func(*NATSBus)

// WithSubjectPrefix overrides the default "loom.events" subject prefix.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(b *NATSBus) { b.prefix = prefix }
}

// WithNATSLogger sets the logger used for delivery failures.
func WithNATSLogger(l *slog.Logger) NATSOption {
	return func(b *NATSBus) { b.logger = l }
}

// NewNATSBus creates a bus over an existing NATS connection. The caller
// owns the connection lifecycle.
func NewNATSBus(nc *nats.Conn, opts ...NATSOption) *NATSBus {
	b := &NATSBus{
		nc:     nc,
		prefix: "loom.events",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements Bus. Failures are logged, never surfaced: the event
// log is authoritative and bus delivery is best-effort.
func (b *NATSBus) Publish(_ context.Context, evt Event) {
	data, err := Marshal(evt)
	if err != nil {
		b.logger.Warn("nats bus: marshal event",
			slog.String("kind", string(evt.EventKind())),
			slog.String("error", err.Error()),
		)
		return
	}

	subject := b.prefix + "." + evt.Workflow().String()
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Warn("nats bus: publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}
