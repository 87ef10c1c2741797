package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrForbidden        = errors.New("forbidden")
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// ListByPatient returns documents newest first, optionally filtered by
	// category.
	ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, category *string, description *string) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
