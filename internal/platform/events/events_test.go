package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnvelope(t *testing.T) {
	data := ChatEvent{
		ChatID:    uuid.New(),
		PatientID: uuid.New(),
		Status:    "escalated",
	}

	env := NewEnvelope(KeyChatEscalated, data)

	if env.Meta.ID == "" {
		t.Error("expected envelope ID to be set")
	}
	if env.Meta.Key != KeyChatEscalated {
		t.Errorf("expected key %s, got %s", KeyChatEscalated, env.Meta.Key)
	}
	if time.Since(env.Meta.OccurredAt) > time.Minute {
		t.Error("expected OccurredAt to be recent")
	}
}

func TestEnvelope_JSONShape(t *testing.T) {
	physID := uuid.New()
	env := NewEnvelope(KeyEscalationCreated, EscalationEvent{
		EscalationID: uuid.New(),
		ChatID:       uuid.New(),
		PatientID:    uuid.New(),
		PhysicianID:  &physID,
		Severity:     "urgent",
		Status:       "pending",
	})

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	meta, ok := decoded["meta"].(map[string]interface{})
	if !ok {
		t.Fatal("expected meta object")
	}
	if meta["key"] != KeyEscalationCreated {
		t.Errorf("expected key in meta, got %v", meta["key"])
	}

	data, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatal("expected data object")
	}
	if data["severity"] != "urgent" {
		t.Errorf("expected severity in data, got %v", data["severity"])
	}
}

func TestEnvelope_UniqueIDs(t *testing.T) {
	a := NewEnvelope(KeyChatResolved, nil)
	b := NewEnvelope(KeyChatResolved, nil)
	if a.Meta.ID == b.Meta.ID {
		t.Error("expected unique envelope IDs")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), KeyChatEscalated, nil); err != nil {
		t.Errorf("noop publish should never fail, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("noop close should never fail, got %v", err)
	}
}
