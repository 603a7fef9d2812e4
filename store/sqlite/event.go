package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
)

// AppendEvent adds an event to the per-workflow ordered log and returns
// its 0-based position. The max-position read and insert run in one
// transaction so positions stay gapless.
func (s *Store) AppendEvent(ctx context.Context, workflowID id.WorkflowID, evt event.Event) (int, error) {
	blob, err := event.Marshal(evt)
	if err != nil {
		return 0, fmt.Errorf("loom/sqlite: encode event: %w", err)
	}

	var position int
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var next sql.NullInt64
		if err := tx.NewSelect().
			Model((*eventModel)(nil)).
			ColumnExpr("MAX(position) + 1").
			Where("workflow_id = ?", workflowID.String()).
			Scan(ctx, &next); err != nil && !isNoRows(err) {
			return err
		}
		if next.Valid {
			position = int(next.Int64)
		}

		_, err := tx.NewInsert().Model(&eventModel{
			WorkflowID: workflowID.String(),
			Position:   position,
			Kind:       string(evt.EventKind()),
			Payload:    blob,
			RecordedAt: evt.Time(),
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("loom/sqlite: append event: %w", err)
	}
	return position, nil
}

// ListEvents returns the full ordered event history for a workflow.
func (s *Store) ListEvents(ctx context.Context, workflowID id.WorkflowID) ([]event.Event, error) {
	var models []eventModel
	err := s.db.NewSelect().Model(&models).
		Where("workflow_id = ?", workflowID.String()).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: list events: %w", err)
	}

	events := make([]event.Event, 0, len(models))
	for i := range models {
		evt, decErr := event.Unmarshal(models[i].Payload)
		if decErr != nil {
			return nil, fmt.Errorf("loom/sqlite: decode event: %w", decErr)
		}
		events = append(events, evt)
	}
	return events, nil
}
