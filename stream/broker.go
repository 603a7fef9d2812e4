package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/weftworks/loom/event"
)

// Broker implements event.Bus and fans domain events out to subscribers
// via topic-based pub/sub.
var _ event.Bus = (*Broker)(nil)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time fan-out hub. Wire it into a coordinator as a
// bus sink; every recorded event reaches subscribers on the firehose,
// the kind-family topic, and the per-workflow topic.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a stream broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         slog.Default(),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Topics returns the topic registry for external use (e.g. the relay).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// Drop removes a subscriber entirely and closes its channel.
func (b *Broker) Drop(subscriberID string) {
	val, ok := b.subscribers.LoadAndDelete(subscriberID)
	if !ok {
		return
	}
	b.topics.UnsubscribeAll(subscriberID)
	val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
}

// Publish implements event.Bus: the domain event is wrapped in a stream
// envelope and broadcast to every matching topic. Delivery is
// best-effort; subscribers that are slow or out of credits miss events.
func (b *Broker) Publish(_ context.Context, evt event.Event) {
	data, err := event.Marshal(evt)
	if err != nil {
		b.logger.Warn("stream: encode event", slog.String("error", err.Error()))
		return
	}

	env := &Event{
		Kind:       evt.EventKind(),
		WorkflowID: evt.Workflow().String(),
		Timestamp:  evt.Time(),
		Data:       data,
	}

	targets := resolveTopics(env)
	delivered := b.topics.Broadcast(targets, env)

	b.totalPublished.Add(1)
	if delivered == 0 {
		b.totalDropped.Add(1)
	}
}

// Stats returns total published envelopes and how many reached no
// subscriber at all.
func (b *Broker) Stats() (published, undelivered int64) {
	return b.totalPublished.Load(), b.totalDropped.Load()
}

// Shutdown closes every subscriber channel.
func (b *Broker) Shutdown(context.Context) error {
	b.subscribers.Range(func(key, val any) bool {
		b.topics.UnsubscribeAll(key.(string)) //nolint:errcheck // keys are string
		val.(*Subscriber).Close()             //nolint:errcheck // values are *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
