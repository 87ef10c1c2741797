package chat

import (
	"time"

	"github.com/google/uuid"
)

// Chat statuses. Resolved is terminal; a new message after resolution
// starts a fresh chat.
const (
	StatusActive    = "active"
	StatusEscalated = "escalated"
	StatusResolved  = "resolved"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Chat is one triage conversation between a patient and the assistant. A
// patient has at most one active chat at any settled point.
type Chat struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	EscalatedAt *time.Time `db:"escalated_at" json:"escalated_at,omitempty"`
	EscalatedTo *uuid.UUID `db:"escalated_to" json:"escalated_to,omitempty"`
}

// ChatMessage is a single turn in a chat. Metadata carries structured
// annotations such as the escalation a notice refers to.
type ChatMessage struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	ChatID    uuid.UUID              `db:"chat_id" json:"chat_id"`
	Role      string                 `db:"role" json:"role"`
	Content   string                 `db:"content" json:"content"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
	Metadata  map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
}

// ValidRole reports whether r is a known message role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}
