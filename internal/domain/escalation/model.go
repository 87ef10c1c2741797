package escalation

import (
	"time"

	"github.com/google/uuid"
)

// Escalation statuses.
const (
	StatusPending      = "pending"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// UnassignedReasonPrefix marks escalations routed to an admin because the
// patient has no assigned physician.
const UnassignedReasonPrefix = "[UNASSIGNED PATIENT] "

// Escalation is a request for human review of a patient conversation.
// Reason, severity, chat and patient are immutable after creation.
type Escalation struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ChatID         uuid.UUID  `db:"chat_id" json:"chat_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PhysicianID    uuid.UUID  `db:"physician_id" json:"physician_id"`
	Reason         string     `db:"reason" json:"reason"`
	Severity       Severity   `db:"severity" json:"severity"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
}

// Unassigned reports whether this escalation was routed to an admin fallback.
func (e *Escalation) Unassigned() bool {
	return len(e.Reason) >= len(UnassignedReasonPrefix) &&
		e.Reason[:len(UnassignedReasonPrefix)] == UnassignedReasonPrefix
}
