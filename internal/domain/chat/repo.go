package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrInvalidTransition = errors.New("invalid chat status transition")
	ErrForbidden         = errors.New("forbidden")
)

type Repository interface {
	Insert(ctx context.Context, c *Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*Chat, error)
	// ListActiveByPatient returns every active chat for the patient, oldest
	// first with the id as tiebreaker. More than one row means a concurrent
	// create raced and the caller must reconcile.
	ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Chat, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Chat, int, error)
	ListEscalatedByPhysician(ctx context.Context, physicianID uuid.UUID, limit, offset int) ([]*Chat, int, error)
	// MarkEscalated transitions active → escalated, recording the physician
	// and the time. Any other start state returns ErrInvalidTransition.
	MarkEscalated(ctx context.Context, id, physicianID uuid.UUID) (*Chat, error)
	// MarkResolved transitions active|escalated → resolved.
	MarkResolved(ctx context.Context, id uuid.UUID) (*Chat, error)
	CountActive(ctx context.Context) (int64, error)
}

type MessageRepository interface {
	Insert(ctx context.Context, m *ChatMessage) error
	// ListByChat returns the full history in chronological order.
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]*ChatMessage, error)
}
