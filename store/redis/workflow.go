package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/weftworks/loom"
	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/workflow"
)

// CreateWorkflow persists a new workflow record.
func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	wfID := wf.ID.String()
	key := workflowKey(wfID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("loom/redis: create workflow exists: %w", err)
	}
	if exists > 0 {
		return loom.ErrWorkflowExists
	}

	m, err := workflowToMap(wf)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	pipe.SAdd(ctx, workflowIDsKey, wfID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("loom/redis: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow record by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	key := workflowKey(workflowID.String())
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("loom/redis: get workflow: %w", err)
	}
	if len(vals) == 0 {
		return nil, loom.ErrWorkflowNotFound
	}
	return mapToWorkflow(vals)
}

// UpdateWorkflow persists changes to an existing workflow record.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	key := workflowKey(wf.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("loom/redis: update workflow exists: %w", err)
	}
	if exists == 0 {
		return loom.ErrWorkflowNotFound
	}

	m, err := workflowToMap(wf)
	if err != nil {
		return err
	}
	m["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key, m).Result()
	if err != nil {
		return fmt.Errorf("loom/redis: update workflow: %w", err)
	}
	return nil
}

// ListWorkflows returns workflows matching the given options.
func (s *Store) ListWorkflows(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Workflow, error) {
	ids, err := s.client.SMembers(ctx, workflowIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("loom/redis: list workflows smembers: %w", err)
	}
	// SMEMBERS order is arbitrary. TypeIDs are K-sortable, so a lexical
	// sort yields creation order and keeps Offset/Limit pagination stable.
	sort.Strings(ids)

	var workflows []*workflow.Workflow
	for _, wfID := range ids {
		vals, getErr := s.client.HGetAll(ctx, workflowKey(wfID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		wf, convErr := mapToWorkflow(vals)
		if convErr != nil {
			continue
		}
		if opts.State != "" && wf.State != opts.State {
			continue
		}
		workflows = append(workflows, wf)
	}

	if opts.Offset >= len(workflows) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Offset > 0 {
		workflows = workflows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(workflows) {
		workflows = workflows[:opts.Limit]
	}
	return workflows, nil
}

// checkpointRecord is the msgpack wire form of a checkpoint. IDs travel
// as strings and the state snapshot as its canonical JSON encoding.
type checkpointRecord struct {
	ID         string    `msgpack:"id"`
	WorkflowID string    `msgpack:"workflow_id"`
	EventIndex int       `msgpack:"event_index"`
	State      []byte    `msgpack:"state"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

func encodeCheckpoint(cp *workflow.Checkpoint) ([]byte, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("loom/redis: encode checkpoint state: %w", err)
	}
	blob, err := msgpack.Marshal(checkpointRecord{
		ID:         cp.ID.String(),
		WorkflowID: cp.WorkflowID.String(),
		EventIndex: cp.EventIndex,
		State:      state,
		CreatedAt:  cp.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("loom/redis: encode checkpoint: %w", err)
	}
	return blob, nil
}

func decodeCheckpoint(blob []byte) (*workflow.Checkpoint, error) {
	var rec checkpointRecord
	if err := msgpack.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("loom/redis: decode checkpoint: %w", err)
	}

	cpID, err := id.ParseCheckpointID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("loom/redis: parse checkpoint id: %w", err)
	}
	wfID, err := id.ParseWorkflowID(rec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("loom/redis: parse checkpoint workflow id: %w", err)
	}

	var state workflow.Workflow
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, fmt.Errorf("loom/redis: decode checkpoint state: %w", err)
	}

	return &workflow.Checkpoint{
		ID:         cpID,
		WorkflowID: wfID,
		EventIndex: rec.EventIndex,
		State:      state,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// SaveCheckpoint appends to the workflow's checkpoint history. Checkpoints
// are msgpack blobs in a Sorted Set scored by event index, so latest and
// prune are single Redis calls.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	blob, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	key := checkpointsKey(cp.WorkflowID.String())
	err = s.client.ZAdd(ctx, key, goredis.Z{
		Score:  float64(cp.EventIndex),
		Member: blob,
	}).Err()
	if err != nil {
		return fmt.Errorf("loom/redis: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the checkpoint with the greatest event index.
func (s *Store) LatestCheckpoint(ctx context.Context, workflowID id.WorkflowID) (*workflow.Checkpoint, error) {
	key := checkpointsKey(workflowID.String())
	members, err := s.client.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("loom/redis: latest checkpoint: %w", err)
	}
	if len(members) == 0 {
		return nil, loom.ErrCheckpointNotFound
	}
	return decodeCheckpoint([]byte(members[0]))
}

// ListCheckpoints returns the checkpoint history ordered by ascending
// event index.
func (s *Store) ListCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*workflow.Checkpoint, error) {
	key := checkpointsKey(workflowID.String())
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loom/redis: list checkpoints: %w", err)
	}

	checkpoints := make([]*workflow.Checkpoint, 0, len(members))
	for _, member := range members {
		cp, decErr := decodeCheckpoint([]byte(member))
		if decErr != nil {
			continue
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

// PruneCheckpoints deletes all but the keep highest-index checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, workflowID id.WorkflowID, keep int) error {
	if keep <= 0 {
		return nil
	}
	key := checkpointsKey(workflowID.String())
	err := s.client.ZRemRangeByRank(ctx, key, 0, int64(-keep-1)).Err()
	if err != nil {
		return fmt.Errorf("loom/redis: prune checkpoints: %w", err)
	}
	return nil
}

// ── helpers ──

func workflowToMap(wf *workflow.Workflow) (map[string]interface{}, error) {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return nil, fmt.Errorf("loom/redis: encode steps: %w", err)
	}

	m := map[string]interface{}{
		"id":         wf.ID.String(),
		"name":       wf.Name,
		"state":      string(wf.State),
		"steps":      string(steps),
		"created_at": wf.Entity.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": wf.Entity.UpdatedAt.Format(time.RFC3339Nano),
	}
	if wf.CompletedAt != nil {
		m["completed_at"] = wf.CompletedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToWorkflow(m map[string]string) (*workflow.Workflow, error) {
	wfID, err := id.ParseWorkflowID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("loom/redis: parse workflow id: %w", err)
	}

	var steps []workflow.Step
	if v := m["steps"]; v != "" {
		if err := json.Unmarshal([]byte(v), &steps); err != nil {
			return nil, fmt.Errorf("loom/redis: decode steps: %w", err)
		}
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	wf := &workflow.Workflow{
		Entity: loom.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:    wfID,
		Name:  m["name"],
		State: workflow.State(m["state"]),
		Steps: steps,
	}

	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		wf.CompletedAt = &t
	}
	return wf, nil
}
