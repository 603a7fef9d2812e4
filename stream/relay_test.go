package stream_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/stream"
)

func startRelay(t *testing.T) (*stream.Broker, string) {
	t.Helper()
	broker := stream.NewBroker()
	srv := httptest.NewServer(stream.NewRelay(broker))
	t.Cleanup(srv.Close)
	return broker, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRelayRoundTrip(t *testing.T) {
	broker, url := startRelay(t)
	ctx := context.Background()

	client, err := stream.Dial(ctx, url, []string{stream.TopicFirehose})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	wfID := id.NewWorkflowID()

	// Subscription races the publish; retry until the relay has
	// registered the topics.
	deadline := time.After(2 * time.Second)
	for {
		broker.Publish(ctx, event.WorkflowCompleted{WorkflowID: wfID, At: time.Now().UTC()})
		select {
		case env := <-client.C():
			if env.Kind != event.KindWorkflowCompleted {
				t.Fatalf("kind = %q, want workflow.completed", env.Kind)
			}
			if env.WorkflowID != wfID.String() {
				t.Fatalf("workflow_id = %q, want %q", env.WorkflowID, wfID)
			}
			decoded, decErr := event.Unmarshal(env.Data)
			if decErr != nil {
				t.Fatalf("Unmarshal: %v", decErr)
			}
			if decoded.Workflow() != wfID {
				t.Fatalf("decoded workflow = %q", decoded.Workflow())
			}
			return
		case <-deadline:
			t.Fatal("no envelope relayed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRelayTopicFilter(t *testing.T) {
	broker, url := startRelay(t)
	ctx := context.Background()

	mine := id.NewWorkflowID()
	client, err := stream.Dial(ctx, url, []string{stream.WorkflowTopic(mine.String())})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	deadline := time.After(2 * time.Second)
	for {
		// The subscribed workflow's event must arrive; the foreign one
		// must never show up.
		broker.Publish(ctx, event.WorkflowFailed{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()})
		broker.Publish(ctx, event.WorkflowCompleted{WorkflowID: mine, At: time.Now().UTC()})

		select {
		case env := <-client.C():
			if env.WorkflowID != mine.String() {
				t.Fatalf("received foreign workflow %q", env.WorkflowID)
			}
			if env.Kind != event.KindWorkflowCompleted {
				t.Fatalf("kind = %q, want workflow.completed", env.Kind)
			}
			return
		case <-deadline:
			t.Fatal("no envelope relayed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRelayUnsubscribeStopsDelivery(t *testing.T) {
	broker, url := startRelay(t)
	ctx := context.Background()

	client, err := stream.Dial(ctx, url, []string{stream.TopicFirehose})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Confirm delivery works before unsubscribing.
	deadline := time.After(2 * time.Second)
	for delivered := false; !delivered; {
		broker.Publish(ctx, event.WorkflowCompleted{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()})
		select {
		case <-client.C():
			delivered = true
		case <-deadline:
			t.Fatal("no envelope relayed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := client.Unsubscribe(stream.TopicFirehose); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	// Let the relay process the control frame, then drain and verify
	// silence.
	time.Sleep(100 * time.Millisecond)
	for len(client.C()) > 0 {
		<-client.C()
	}
	broker.Publish(ctx, event.WorkflowCompleted{WorkflowID: id.NewWorkflowID(), At: time.Now().UTC()})
	select {
	case env := <-client.C():
		t.Fatalf("received %q after unsubscribe", env.Kind)
	case <-time.After(150 * time.Millisecond):
	}
}
