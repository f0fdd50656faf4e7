package event

import (
	"testing"
)

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeFlowCreated, "flow-1", "exp-1", map[string]interface{}{
		"rule_name": "default",
	})

	if evt.ID == "" {
		t.Error("NewEvent() should assign an ID")
	}
	if evt.CorrelationID == "" {
		t.Error("NewEvent() should assign a correlation ID")
	}
	if evt.Type != TypeFlowCreated {
		t.Errorf("Type = %v, want %v", evt.Type, TypeFlowCreated)
	}
	if evt.FlowID != "flow-1" {
		t.Errorf("FlowID = %v, want flow-1", evt.FlowID)
	}
	if evt.ExpenseID != "exp-1" {
		t.Errorf("ExpenseID = %v, want exp-1", evt.ExpenseID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("NewEvent() should set a timestamp")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	evt := NewEventWithCorrelation(TypeStepAdvanced, "flow-1", "exp-1", nil, "corr-123")
	if evt.CorrelationID != "corr-123" {
		t.Errorf("CorrelationID = %v, want corr-123", evt.CorrelationID)
	}
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	orig := NewEvent(TypeVoteRecorded, "flow-1", "exp-1", map[string]interface{}{
		"approver_id": "u-1",
	})

	derived := orig.WithPayload("step_number", 2)

	if _, ok := orig.Payload["step_number"]; ok {
		t.Error("WithPayload() must not mutate the original event")
	}
	if derived.GetPayloadInt("step_number") != 2 {
		t.Errorf("derived step_number = %v, want 2", derived.GetPayloadInt("step_number"))
	}
	if derived.GetPayloadString("approver_id") != "u-1" {
		t.Error("derived event should carry over the original payload")
	}
	if derived.ID != orig.ID || derived.CorrelationID != orig.CorrelationID {
		t.Error("derived event should keep identity and correlation")
	}
}

func TestEvent_PayloadGetters(t *testing.T) {
	evt := NewEvent(TypeEscalated, "flow-1", "exp-1", map[string]interface{}{
		"target":     "cfo",
		"step_index": float64(1), // as JSON decodes numbers
		"urgent":     true,
	})

	if got := evt.GetPayloadString("target"); got != "cfo" {
		t.Errorf("GetPayloadString() = %v, want cfo", got)
	}
	if got := evt.GetPayloadInt("step_index"); got != 1 {
		t.Errorf("GetPayloadInt() = %v, want 1", got)
	}
	if !evt.GetPayloadBool("urgent") {
		t.Error("GetPayloadBool() = false, want true")
	}

	// Missing and mistyped keys fall back to zero values.
	if got := evt.GetPayloadString("missing"); got != "" {
		t.Errorf("GetPayloadString(missing) = %v, want empty", got)
	}
	if got := evt.GetPayloadInt("target"); got != 0 {
		t.Errorf("GetPayloadInt(target) = %v, want 0", got)
	}
	if evt.GetPayloadBool("target") {
		t.Error("GetPayloadBool(target) should be false")
	}
}

func TestType_IsValid(t *testing.T) {
	valid := []Type{
		TypeFlowCreated, TypeVoteRecorded, TypeStepAdvanced,
		TypeFlowResolved, TypeEscalated, TypeFlowCancelled,
	}
	for _, typ := range valid {
		if !typ.IsValid() {
			t.Errorf("%v should be valid", typ)
		}
	}
	if Type("flow.unknown").IsValid() {
		t.Error("unknown type should be invalid")
	}
	if Type("").IsValid() {
		t.Error("empty type should be invalid")
	}
}
