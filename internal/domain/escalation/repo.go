package escalation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrEscalationNotFound = errors.New("escalation not found")
	ErrInvalidTransition  = errors.New("invalid escalation status transition")
	ErrForbidden          = errors.New("forbidden")

	// ErrNoAdminAvailable means the admin fallback for unassigned patients
	// found no admin account. This is a deployment configuration error and
	// must surface loudly rather than drop the escalation.
	ErrNoAdminAvailable = errors.New("no administrators available to handle escalation")
)

type Repository interface {
	Create(ctx context.Context, e *Escalation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Escalation, error)
	GetByChat(ctx context.Context, chatID uuid.UUID) (*Escalation, error)
	// MarkAcknowledged transitions pending → acknowledged; any other start
	// state returns ErrInvalidTransition.
	MarkAcknowledged(ctx context.Context, id uuid.UUID) (*Escalation, error)
	// MarkResolved transitions pending|acknowledged → resolved.
	MarkResolved(ctx context.Context, id uuid.UUID, notes *string) (*Escalation, error)
	ListByPhysician(ctx context.Context, physicianID uuid.UUID, status string, limit, offset int) ([]*Escalation, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Escalation, int, error)
	// ListPending returns open escalations, optionally filtered by severity,
	// most severe and oldest first.
	ListPending(ctx context.Context, severity Severity, limit, offset int) ([]*Escalation, int, error)
	CountOpen(ctx context.Context) (int64, error)
}
