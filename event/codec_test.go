package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/id"
)

func TestCodecRoundTrip(t *testing.T) {
	wfID := id.NewWorkflowID()
	stepID := id.NewStepID()
	agentID := id.NewAgentID()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name string
		evt  event.Event
	}{
		{"StepStarted", event.StepStarted{WorkflowID: wfID, StepID: stepID, AgentID: agentID, At: at}},
		{"StepCompleted", event.StepCompleted{WorkflowID: wfID, StepID: stepID, Output: []byte(`{"n":1}`), At: at}},
		{"StepFailed", event.StepFailed{WorkflowID: wfID, StepID: stepID, Reason: "executor crashed", At: at}},
		{"WorkflowCompleted", event.WorkflowCompleted{WorkflowID: wfID, At: at}},
		{"WorkflowFailed", event.WorkflowFailed{WorkflowID: wfID, At: at}},
		{"WorkflowPaused", event.WorkflowPaused{WorkflowID: wfID, At: at}},
		{"WorkflowResumed", event.WorkflowResumed{WorkflowID: wfID, At: at}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := event.Marshal(tt.evt)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			decoded, err := event.Unmarshal(data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if decoded.EventKind() != tt.evt.EventKind() {
				t.Errorf("kind = %q, want %q", decoded.EventKind(), tt.evt.EventKind())
			}
			if decoded.Workflow().String() != wfID.String() {
				t.Errorf("workflow = %q, want %q", decoded.Workflow(), wfID)
			}
			if !decoded.Time().Equal(at) {
				t.Errorf("time = %v, want %v", decoded.Time(), at)
			}
		})
	}
}

func TestUnmarshalPreservesStepFailedReason(t *testing.T) {
	orig := event.StepFailed{
		WorkflowID: id.NewWorkflowID(),
		StepID:     id.NewStepID(),
		Reason:     "loom: step execution timed out",
		At:         time.Now().UTC(),
	}

	data, err := event.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := event.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	failed, ok := decoded.(event.StepFailed)
	if !ok {
		t.Fatalf("decoded type = %T, want StepFailed", decoded)
	}
	if failed.Reason != orig.Reason {
		t.Errorf("reason = %q, want %q", failed.Reason, orig.Reason)
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	wfID := id.NewWorkflowID()
	raw, err := json.Marshal(map[string]any{
		"kind": "workflow.archived",
		"payload": map[string]any{
			"workflow_id": wfID.String(),
			"at":          "2026-03-14T09:26:53Z",
		},
	})
	if err != nil {
		t.Fatalf("build raw envelope: %v", err)
	}

	decoded, err := event.Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	unknown, ok := decoded.(event.Unknown)
	if !ok {
		t.Fatalf("decoded type = %T, want Unknown", decoded)
	}
	if unknown.RawKind != "workflow.archived" {
		t.Errorf("raw kind = %q, want %q", unknown.RawKind, "workflow.archived")
	}
	if unknown.Workflow().String() != wfID.String() {
		t.Errorf("workflow = %q, want %q", unknown.Workflow(), wfID)
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := event.Unmarshal([]byte("not json")); err == nil {
		t.Error("expected error for invalid envelope")
	}
}
