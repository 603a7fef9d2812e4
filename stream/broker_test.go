package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/stream"
)

func stepEvent(wfID id.WorkflowID) event.Event {
	return event.StepCompleted{
		WorkflowID: wfID,
		StepID:     id.NewStepID(),
		Output:     []byte("ok"),
		At:         time.Now().UTC(),
	}
}

func recvEvent(t *testing.T, sub *stream.Subscriber) *stream.Event {
	t.Helper()
	select {
	case env := <-sub.C():
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishFansOutToTopics(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()

	fire := b.Subscribe("firehose-sub", stream.TopicFirehose)
	steps := b.Subscribe("steps-sub", stream.TopicSteps)
	mine := b.Subscribe("wf-sub", stream.WorkflowTopic(wfID.String()))
	other := b.Subscribe("other-sub", stream.WorkflowTopic(id.NewWorkflowID().String()))

	b.Publish(context.Background(), stepEvent(wfID))

	for _, sub := range []*stream.Subscriber{fire, steps, mine} {
		env := recvEvent(t, sub)
		if env.Kind != event.KindStepCompleted {
			t.Fatalf("kind = %q, want step.completed", env.Kind)
		}
		if env.WorkflowID != wfID.String() {
			t.Fatalf("workflow_id = %q, want %q", env.WorkflowID, wfID)
		}
	}

	select {
	case env := <-other.C():
		t.Fatalf("unrelated subscriber received %q", env.Kind)
	default:
	}
}

func TestPublishDeduplicatesAcrossTopics(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()

	// On both firehose and the per-workflow topic; one delivery expected.
	sub := b.Subscribe("greedy", stream.TopicFirehose, stream.WorkflowTopic(wfID.String()))

	b.Publish(context.Background(), stepEvent(wfID))
	recvEvent(t, sub)

	select {
	case env := <-sub.C():
		t.Fatalf("duplicate delivery of %q", env.Kind)
	default:
	}
}

func TestEnvelopeDataRoundTrips(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()
	sub := b.Subscribe("decoder", stream.TopicFirehose)

	b.Publish(context.Background(), stepEvent(wfID))
	env := recvEvent(t, sub)

	decoded, err := event.Unmarshal(env.Data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.EventKind() != event.KindStepCompleted {
		t.Fatalf("decoded kind = %q, want step.completed", decoded.EventKind())
	}
	if decoded.Workflow() != wfID {
		t.Fatalf("decoded workflow = %q, want %q", decoded.Workflow(), wfID)
	}
}

func TestCreditsExhaustion(t *testing.T) {
	b := stream.NewBroker(stream.WithDefaultCredits(2), stream.WithBufferSize(8))
	wfID := id.NewWorkflowID()
	sub := b.Subscribe("throttled", stream.TopicFirehose)

	for range 5 {
		b.Publish(context.Background(), stepEvent(wfID))
	}
	if got := len(sub.C()); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}

	sub.AddCredits(10)
	b.Publish(context.Background(), stepEvent(wfID))
	if got := len(sub.C()); got != 3 {
		t.Fatalf("delivered after refill = %d, want 3", got)
	}
}

func TestSubscriberFilter(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()
	sub := b.Subscribe("picky", stream.TopicFirehose)
	sub.SetFilter(func(e *stream.Event) bool {
		return e.Kind == event.KindWorkflowCompleted
	})

	b.Publish(context.Background(), stepEvent(wfID))
	b.Publish(context.Background(), event.WorkflowCompleted{WorkflowID: wfID, At: time.Now().UTC()})

	env := recvEvent(t, sub)
	if env.Kind != event.KindWorkflowCompleted {
		t.Fatalf("kind = %q, want workflow.completed", env.Kind)
	}
	if got := len(sub.C()); got != 0 {
		t.Fatalf("filtered events leaked: %d pending", got)
	}
}

func TestDropClosesSubscriber(t *testing.T) {
	b := stream.NewBroker()
	sub := b.Subscribe("gone", stream.TopicFirehose)

	b.Drop("gone")
	if _, open := <-sub.C(); open {
		t.Fatal("channel still open after Drop")
	}
	if got := b.Topics().SubscriberCount(stream.TopicFirehose); got != 0 {
		t.Fatalf("subscriber count = %d, want 0", got)
	}

	// Publishing after the drop must not panic.
	b.Publish(context.Background(), stepEvent(id.NewWorkflowID()))
}

func TestStatsCountUndelivered(t *testing.T) {
	b := stream.NewBroker()
	b.Publish(context.Background(), stepEvent(id.NewWorkflowID()))

	published, undelivered := b.Stats()
	if published != 1 || undelivered != 1 {
		t.Fatalf("stats = (%d, %d), want (1, 1)", published, undelivered)
	}
}

func TestValidateTopic(t *testing.T) {
	valid := []string{
		stream.TopicFirehose,
		stream.TopicWorkflows,
		stream.TopicSteps,
		stream.WorkflowTopic("wf_123"),
	}
	for _, topic := range valid {
		if err := stream.ValidateTopic(topic); err != nil {
			t.Fatalf("ValidateTopic(%q) = %v", topic, err)
		}
	}

	invalid := []string{"", "workflow:", ":wf_123", "job:abc", "nonsense"}
	for _, topic := range invalid {
		if err := stream.ValidateTopic(topic); err == nil {
			t.Fatalf("ValidateTopic(%q) succeeded, want error", topic)
		}
	}
}

func TestDropDuringPublishDoesNotPanic(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()
	ctx := context.Background()

	// A relay client disconnecting mid-stream drops its subscriber while
	// the coordinator is still publishing through the broker.
	for range 50 {
		b.Subscribe("flaky-client", stream.TopicFirehose)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for range 20 {
				b.Publish(ctx, stepEvent(wfID))
			}
		}()
		b.Drop("flaky-client")
		<-done
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	b := stream.NewBroker()
	wfID := id.NewWorkflowID()

	sub := b.Subscribe("gone", stream.TopicFirehose)
	sub.Close()

	b.Publish(context.Background(), stepEvent(wfID))

	if _, ok := <-sub.C(); ok {
		t.Fatal("closed subscriber received an event")
	}
	_, undelivered := b.Stats()
	if undelivered == 0 {
		t.Fatal("drop on a closed subscriber was not counted")
	}
}
