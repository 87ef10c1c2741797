package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrPhysicianNotFound = errors.New("physician not found")
	ErrForbidden         = errors.New("forbidden")
)

type UserRepository interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	// FirstAdmin returns the oldest admin account by created_at, used as the
	// escalation fallback for unassigned patients.
	FirstAdmin(ctx context.Context) (*User, error)
	List(ctx context.Context, role string, limit, offset int) ([]*User, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	UpdateConsent(ctx context.Context, id uuid.UUID, status string) error
	AssignPhysician(ctx context.Context, id uuid.UUID, physicianUserID uuid.UUID) error
	ListByPhysician(ctx context.Context, physicianUserID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type PhysicianRepository interface {
	Create(ctx context.Context, p *Physician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Physician, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Physician, error)
	List(ctx context.Context, limit, offset int) ([]*Physician, int, error)
}
