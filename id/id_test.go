package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/weftworks/loom/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"WorkflowID", id.NewWorkflowID, "wf_"},
		{"StepID", id.NewStepID, "step_"},
		{"AgentID", id.NewAgentID, "agt_"},
		{"EventID", id.NewEventID, "evt_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixWorkflow)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixWorkflow {
		t.Errorf("expected prefix %q, got %q", id.PrefixWorkflow, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"WorkflowID", id.NewWorkflowID, id.ParseWorkflowID},
		{"StepID", id.NewStepID, id.ParseStepID},
		{"AgentID", id.NewAgentID, id.ParseAgentID},
		{"EventID", id.NewEventID, id.ParseEventID},
		{"CheckpointID", id.NewCheckpointID, id.ParseCheckpointID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseWorkflowID rejects step_", id.NewStepID().String(), id.ParseWorkflowID},
		{"ParseStepID rejects agt_", id.NewAgentID().String(), id.ParseStepID},
		{"ParseAgentID rejects evt_", id.NewEventID().String(), id.ParseAgentID},
		{"ParseEventID rejects ckpt_", id.NewCheckpointID().String(), id.ParseEventID},
		{"ParseCheckpointID rejects wf_", id.NewWorkflowID().String(), id.ParseCheckpointID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	original := wrapper{ID: id.NewAgentID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID.String() != original.ID.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.ID.String(), original.ID.String())
	}
}
