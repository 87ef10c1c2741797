package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for domain events published to the topic exchange.
const (
	KeyChatEscalated      = "chat.escalated"
	KeyChatResolved       = "chat.resolved"
	KeyEscalationCreated  = "escalation.created"
	KeyEscalationAcked    = "escalation.acknowledged"
	KeyEscalationResolved = "escalation.resolved"
	KeyDocumentUploaded   = "document.uploaded"
	KeyPhysicianAssigned  = "patient.physician_assigned"
)

// Meta carries the identity and timing of a published event.
type Meta struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Envelope is the wire form of every published event.
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// NewEnvelope wraps data in an envelope stamped with a fresh ID and the
// current time.
func NewEnvelope(key string, data interface{}) Envelope {
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Key:        key,
			OccurredAt: time.Now().UTC(),
		},
		Data: data,
	}
}

// EscalationEvent is the payload for escalation lifecycle events.
type EscalationEvent struct {
	EscalationID uuid.UUID  `json:"escalationId"`
	ChatID       uuid.UUID  `json:"chatId"`
	PatientID    uuid.UUID  `json:"patientId"`
	PhysicianID  *uuid.UUID `json:"physicianId,omitempty"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
}

// ChatEvent is the payload for chat lifecycle events.
type ChatEvent struct {
	ChatID      uuid.UUID  `json:"chatId"`
	PatientID   uuid.UUID  `json:"patientId"`
	PhysicianID *uuid.UUID `json:"physicianId,omitempty"`
	Status      string     `json:"status"`
}

// PatientEvent is the payload for patient profile events.
type PatientEvent struct {
	PatientID   uuid.UUID  `json:"patientId"`
	PhysicianID *uuid.UUID `json:"physicianId,omitempty"`
}

// DocumentEvent is the payload for document lifecycle events.
type DocumentEvent struct {
	DocumentID uuid.UUID `json:"documentId"`
	PatientID  uuid.UUID `json:"patientId"`
	Category   string    `json:"category"`
}
