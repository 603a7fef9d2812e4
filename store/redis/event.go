package redis

import (
	"context"
	"fmt"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
)

// AppendEvent adds an event to the per-workflow ordered log and returns
// its 0-based position. A Redis List is append-only under RPUSH, which is
// exactly the log contract.
func (s *Store) AppendEvent(ctx context.Context, workflowID id.WorkflowID, evt event.Event) (int, error) {
	blob, err := event.Marshal(evt)
	if err != nil {
		return 0, fmt.Errorf("loom/redis: encode event: %w", err)
	}

	length, err := s.client.RPush(ctx, eventsKey(workflowID.String()), blob).Result()
	if err != nil {
		return 0, fmt.Errorf("loom/redis: append event: %w", err)
	}
	return int(length) - 1, nil
}

// ListEvents returns the full ordered event history for a workflow.
func (s *Store) ListEvents(ctx context.Context, workflowID id.WorkflowID) ([]event.Event, error) {
	blobs, err := s.client.LRange(ctx, eventsKey(workflowID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loom/redis: list events: %w", err)
	}

	events := make([]event.Event, 0, len(blobs))
	for _, blob := range blobs {
		evt, decErr := event.Unmarshal([]byte(blob))
		if decErr != nil {
			return nil, fmt.Errorf("loom/redis: decode event: %w", decErr)
		}
		events = append(events, evt)
	}
	return events, nil
}
