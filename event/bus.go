package event

import (
	"context"
	"slices"
	"sync"
)

// Bus is the fire-and-forget observability side channel. Publishing never
// affects durability — the event log is authoritative — so Publish returns
// nothing and implementations must swallow (and at most log) delivery
// failures.
type Bus interface {
	Publish(ctx context.Context, evt Event)
}

// NopBus discards everything.
type NopBus struct{}

// Publish implements Bus.
func (NopBus) Publish(context.Context, Event) {}

// MultiBus fans a published event out to several buses in order.
type MultiBus []Bus

// Publish implements Bus.
func (m MultiBus) Publish(ctx context.Context, evt Event) {
	for _, b := range m {
		b.Publish(ctx, evt)
	}
}

// MemoryBus is an in-process broadcast bus. Subscribers receive events on
// buffered channels; a slow subscriber drops events rather than blocking
// the publisher.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewMemoryBus creates an in-process broadcast bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a subscriber with the given channel buffer and
// returns the receive channel plus a cancel function that closes it.
func (b *MemoryBus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		i := slices.Index(b.subs, ch)
		if i < 0 {
			return
		}
		b.subs = slices.Delete(b.subs, i, i+1)
		close(ch)
	}
	return ch, cancel
}

// Publish implements Bus. Delivery is best-effort: a full subscriber
// buffer drops the event for that subscriber.
func (b *MemoryBus) Publish(_ context.Context, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
