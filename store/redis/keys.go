package redis

// Redis key naming conventions for loom data.
// All keys are prefixed with "loom:" to avoid collisions.

const keyPrefix = "loom:"

// ── Workflow keys ──

// workflowKey returns the key for a workflow record: loom:workflow:{id}
func workflowKey(id string) string { return keyPrefix + "workflow:" + id }

// workflowIDsKey is the Set tracking all workflow IDs for enumeration.
const workflowIDsKey = keyPrefix + "workflow_ids"

// ── Event log keys ──

// eventsKey returns the List key holding a workflow's ordered event log:
// loom:events:{workflowID}
func eventsKey(workflowID string) string { return keyPrefix + "events:" + workflowID }

// ── Checkpoint keys ──

// checkpointsKey returns the Sorted Set key holding a workflow's checkpoint
// history, scored by event index: loom:checkpoints:{workflowID}
func checkpointsKey(workflowID string) string { return keyPrefix + "checkpoints:" + workflowID }
