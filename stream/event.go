// Package stream fans workflow domain events out to live observers via
// topic-based pub/sub, and relays them over WebSocket. The broker is an
// event.Bus sink: delivery is best-effort with credit-based flow
// control, and the durable event log remains the source of truth.
package stream

import (
	"encoding/json"
	"time"

	"github.com/weftworks/loom/event"
)

// Event is the envelope delivered to subscribers on a topic channel.
type Event struct {
	// Kind identifies the domain event variant.
	Kind event.Kind `json:"kind"`

	// WorkflowID is the workflow the event belongs to.
	WorkflowID string `json:"workflow_id"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"ts"`

	// Data is the full encoded domain event.
	Data json.RawMessage `json:"data"`
}
