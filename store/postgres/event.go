package postgres

import (
	"context"
	"fmt"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
)

// AppendEvent adds an event to the per-workflow ordered log and returns
// its 0-based position. The insert computes the next position inside a
// transaction so concurrent appends for the same workflow stay gapless;
// a duplicate-key conflict means another append won the race, so retry.
func (s *Store) AppendEvent(ctx context.Context, workflowID id.WorkflowID, evt event.Event) (int, error) {
	blob, err := event.Marshal(evt)
	if err != nil {
		return 0, fmt.Errorf("loom/postgres: encode event: %w", err)
	}

	for {
		var position int
		err = s.pool.QueryRow(ctx, `
			INSERT INTO loom_events (workflow_id, position, kind, payload, recorded_at)
			SELECT $1, COALESCE(MAX(position) + 1, 0), $2, $3, $4
			FROM loom_events WHERE workflow_id = $1
			RETURNING position`,
			workflowID.String(), string(evt.EventKind()), blob, evt.Time(),
		).Scan(&position)
		if err == nil {
			return position, nil
		}
		if isDuplicateKey(err) {
			continue
		}
		return 0, fmt.Errorf("loom/postgres: append event: %w", err)
	}
}

// ListEvents returns the full ordered event history for a workflow.
func (s *Store) ListEvents(ctx context.Context, workflowID id.WorkflowID) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM loom_events
		WHERE workflow_id = $1
		ORDER BY position ASC`,
		workflowID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("loom/postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("loom/postgres: scan event: %w", err)
		}
		evt, decErr := event.Unmarshal(blob)
		if decErr != nil {
			return nil, fmt.Errorf("loom/postgres: decode event: %w", decErr)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
