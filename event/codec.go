package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/weftworks/loom/id"
)

// envelope is the durable wire shape for events: a kind discriminator plus
// the variant payload. The shape must stay stable across process restarts
// for replay to function.
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// header is the common subset salvaged from payloads of unknown kinds.
type header struct {
	WorkflowID id.WorkflowID `json:"workflow_id"`
	At         time.Time     `json:"at"`
}

// Marshal encodes an event into its durable envelope form.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s payload: %w", e.EventKind(), err)
	}

	data, err := json.Marshal(envelope{Kind: e.EventKind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s envelope: %w", e.EventKind(), err)
	}
	return data, nil
}

// Unmarshal decodes a durable envelope back into its event variant.
// An unrecognized kind decodes to Unknown rather than an error, so logs
// written by newer builds replay cleanly on older ones.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("event: unmarshal envelope: %w", err)
	}

	switch env.Kind {
	case KindStepStarted:
		var e StepStarted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindStepCompleted:
		var e StepCompleted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindStepFailed:
		var e StepFailed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindWorkflowCompleted:
		var e WorkflowCompleted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindWorkflowFailed:
		var e WorkflowFailed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindWorkflowPaused:
		var e WorkflowPaused
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	case KindWorkflowResumed:
		var e WorkflowResumed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("event: unmarshal %s: %w", env.Kind, err)
		}
		return e, nil
	default:
		// Forward compatibility: salvage the common header, keep the kind.
		var h header
		//nolint:errcheck // best-effort header salvage for an unknown kind
		json.Unmarshal(env.Payload, &h)
		return Unknown{RawKind: string(env.Kind), WorkflowID: h.WorkflowID, At: h.At}, nil
	}
}
