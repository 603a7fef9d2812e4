package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
)

func TestMemoryBusBroadcast(t *testing.T) {
	bus := event.NewMemoryBus()

	ch1, cancel1 := bus.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel2()

	evt := event.WorkflowCompleted{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()}
	bus.Publish(context.Background(), evt)

	for i, ch := range []<-chan event.Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.EventKind() != event.KindWorkflowCompleted {
				t.Errorf("subscriber %d: kind = %q, want %q", i, got.EventKind(), event.KindWorkflowCompleted)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

func TestMemoryBusDropsWhenFull(t *testing.T) {
	bus := event.NewMemoryBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	evt := event.WorkflowPaused{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()}
	bus.Publish(context.Background(), evt)
	bus.Publish(context.Background(), evt) // buffer full, dropped

	<-ch
	select {
	case e := <-ch:
		t.Errorf("expected second event dropped, got %v", e)
	default:
	}
}

func TestMemoryBusCancelledSubscriber(t *testing.T) {
	bus := event.NewMemoryBus()
	ch, cancel := bus.Subscribe(1)
	cancel()

	// Publishing after cancel must not panic on the closed channel.
	bus.Publish(context.Background(), event.WorkflowResumed{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()})

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestMultiBusFansOut(t *testing.T) {
	b1 := event.NewMemoryBus()
	b2 := event.NewMemoryBus()
	ch1, cancel1 := b1.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := b2.Subscribe(1)
	defer cancel2()

	multi := event.MultiBus{event.NopBus{}, b1, b2}
	multi.Publish(context.Background(), event.WorkflowFailed{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()})

	if len(ch1) != 1 || len(ch2) != 1 {
		t.Errorf("fan-out delivered %d/%d events, want 1/1", len(ch1), len(ch2))
	}
}
