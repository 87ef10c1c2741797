package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/notification"
)

type Service struct {
	users      UserRepository
	patients   PatientRepository
	physicians PhysicianRepository
	publisher  events.Publisher
	notifier   *notification.Notifier
	logger     zerolog.Logger
}

func NewService(
	users UserRepository,
	patients PatientRepository,
	physicians PhysicianRepository,
	publisher events.Publisher,
	notifier *notification.Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		users:      users,
		patients:   patients,
		physicians: physicians,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger.With().Str("component", "identity").Logger(),
	}
}

// -- Users --

// SyncUser upserts the local mirror of an identity-provider account and
// stamps its last login.
func (s *Service) SyncUser(ctx context.Context, externalID, email string, name *string, role string) (*User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external_id is required")
	}
	if !auth.ValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	u := &User{ExternalID: externalID, Email: email, Name: name, Role: role}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	return s.users.GetByExternalID(ctx, externalID)
}

// FirstAdmin returns the oldest admin account, the fallback recipient for
// unassigned-patient escalations.
func (s *Service) FirstAdmin(ctx context.Context) (*User, error) {
	return s.users.FirstAdmin(ctx)
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" && !auth.ValidRole(role) {
		return nil, 0, fmt.Errorf("invalid role: %s", role)
	}
	return s.users.List(ctx, role, limit, offset)
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("date_of_birth is required")
	}
	if p.ConsentStatus == "" {
		p.ConsentStatus = ConsentPending
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

// UpdatePatient applies profile edits. Patients may only edit their own
// profile; physicians and admins may edit any.
func (s *Service) UpdatePatient(ctx context.Context, actor *User, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if actor.Role == auth.RolePatient {
		existing, err := s.patients.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if existing.UserID != actor.ID {
			return ErrForbidden
		}
	}
	return s.patients.Update(ctx, p)
}

var validConsentStatuses = map[string]bool{
	ConsentPending: true, ConsentGranted: true, ConsentRevoked: true,
}

// UpdateConsent records a consent decision. Only the patient themself or an
// admin may change consent.
func (s *Service) UpdateConsent(ctx context.Context, actor *User, patientID uuid.UUID, status string) error {
	if !validConsentStatuses[status] {
		return fmt.Errorf("invalid consent status: %s", status)
	}
	if actor.Role == auth.RolePatient {
		existing, err := s.patients.GetByID(ctx, patientID)
		if err != nil {
			return err
		}
		if existing.UserID != actor.ID {
			return ErrForbidden
		}
	} else if actor.Role != auth.RoleAdmin {
		return ErrForbidden
	}
	return s.patients.UpdateConsent(ctx, patientID, status)
}

// AssignPhysician links a patient to a care provider. The target user must
// hold the physician role.
func (s *Service) AssignPhysician(ctx context.Context, patientID, physicianUserID uuid.UUID) error {
	target, err := s.users.GetByID(ctx, physicianUserID)
	if err != nil {
		return err
	}
	if target.Role != auth.RolePhysician {
		return fmt.Errorf("user %s does not hold the physician role", physicianUserID)
	}
	if err := s.patients.AssignPhysician(ctx, patientID, physicianUserID); err != nil {
		return err
	}

	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("assigned physician but could not reload patient")
		return nil
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.KeyPhysicianAssigned, events.PatientEvent{
			PatientID:   patient.ID,
			PhysicianID: &physicianUserID,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("publish physician assignment event failed")
		}
	}
	if s.notifier != nil {
		physicianName := target.Email
		if target.Name != nil {
			physicianName = *target.Name
		}
		patientUser, err := s.users.GetByID(ctx, patient.UserID)
		if err == nil {
			s.notifier.PhysicianAssigned(ctx, patientUser.Email, patient.FullName(), physicianName)
		}
	}
	return nil
}

func (s *Service) ListPatientsByPhysician(ctx context.Context, physicianUserID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListByPhysician(ctx, physicianUserID, limit, offset)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Physicians --

func (s *Service) CreatePhysician(ctx context.Context, p *Physician) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.LicenseNumber == "" {
		return fmt.Errorf("license_number is required")
	}
	target, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if target.Role != auth.RolePhysician {
		return fmt.Errorf("user %s does not hold the physician role", p.UserID)
	}
	return s.physicians.Create(ctx, p)
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return s.physicians.GetByID(ctx, id)
}

func (s *Service) GetPhysicianByUser(ctx context.Context, userID uuid.UUID) (*Physician, error) {
	return s.physicians.GetByUserID(ctx, userID)
}

func (s *Service) ListPhysicians(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, limit, offset)
}
