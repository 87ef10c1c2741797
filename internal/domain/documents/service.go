package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/internal/platform/blobstore"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

// Presigned URL lifetimes. Long enough for a browser transfer, short enough
// that a leaked URL goes stale quickly.
const (
	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = 15 * time.Minute
)

// PatientDirectory resolves patient profiles for access checks. Satisfied
// by the identity service.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Service struct {
	repo      Repository
	directory PatientDirectory
	store     blobstore.Store
	publisher events.Publisher
	metrics   *telemetry.TelemetryProvider
	logger    zerolog.Logger
}

func NewService(
	repo Repository,
	directory PatientDirectory,
	store blobstore.Store,
	publisher events.Publisher,
	metrics *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With().Str("component", "documents").Logger(),
	}
}

// authorizePatient enforces the access rule for a patient's documents:
// admins see everything, physicians see their assigned patients, patients
// see themselves. Violations are ErrForbidden, distinct from not-found.
func (s *Service) authorizePatient(ctx context.Context, actor *identity.User, patientID uuid.UUID) error {
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	patient, err := s.directory.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}
	switch actor.Role {
	case auth.RolePhysician:
		if patient.AssignedPhysicianID != nil && *patient.AssignedPhysicianID == actor.ID {
			return nil
		}
	case auth.RolePatient:
		if patient.UserID == actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

// UploadTicket is a presigned upload URL plus the object key the client
// must echo back when creating the document record.
type UploadTicket struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
}

// IssueUploadURL authorizes the caller against the patient and returns a
// presigned PUT URL for the file.
func (s *Service) IssueUploadURL(ctx context.Context, actor *identity.User, patientID uuid.UUID, fileName, contentType string) (*UploadTicket, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if err := s.authorizePatient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("patients/%s/%s/%s", patientID, uuid.NewString(), fileName)
	url, err := s.store.IssueUploadURL(ctx, key, contentType, uploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("issue upload url: %w", err)
	}
	return &UploadTicket{UploadURL: url, ObjectKey: key}, nil
}

// Create records an uploaded document. UploadedBy is always the caller.
func (s *Service) Create(ctx context.Context, actor *identity.User, d *Document) (*Document, error) {
	if !ValidCategory(d.Category) {
		return nil, fmt.Errorf("invalid document category %q", d.Category)
	}
	if strings.TrimSpace(d.FileName) == "" || strings.TrimSpace(d.ObjectKey) == "" {
		return nil, fmt.Errorf("file name and object key are required")
	}
	if err := s.authorizePatient(ctx, actor, d.PatientID); err != nil {
		return nil, err
	}
	d.UploadedBy = actor.ID
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info().
		Str("document_id", d.ID.String()).
		Str("patient_id", d.PatientID.String()).
		Str("category", d.Category).
		Msg("document recorded")
	if s.metrics != nil {
		s.metrics.DocumentUploaded()
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.KeyDocumentUploaded, events.DocumentEvent{
			DocumentID: d.ID,
			PatientID:  d.PatientID,
			Category:   d.Category,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("publish document event failed")
		}
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, actor *identity.User, id uuid.UUID) (*Document, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, d.PatientID); err != nil {
		return nil, err
	}
	return d, nil
}

// DownloadURL returns a presigned GET URL for the document.
func (s *Service) DownloadURL(ctx context.Context, actor *identity.User, id uuid.UUID) (string, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	url, err := s.store.IssueDownloadURL(ctx, d.ObjectKey, downloadURLTTL)
	if err != nil {
		return "", fmt.Errorf("issue download url: %w", err)
	}
	return url, nil
}

func (s *Service) ListByPatient(ctx context.Context, actor *identity.User, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error) {
	if category != "" && !ValidCategory(category) {
		return nil, 0, fmt.Errorf("invalid document category %q", category)
	}
	if err := s.authorizePatient(ctx, actor, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, category, limit, offset)
}

// UpdateMetadata changes the category or description of a document.
func (s *Service) UpdateMetadata(ctx context.Context, actor *identity.User, id uuid.UUID, category, description *string) (*Document, error) {
	if category != nil && !ValidCategory(*category) {
		return nil, fmt.Errorf("invalid document category %q", *category)
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.UpdateMetadata(ctx, id, category, description)
}

// Delete removes the object and then the record. Patients may delete only
// documents they uploaded; physicians only for their assigned patients;
// admins anything.
func (s *Service) Delete(ctx context.Context, actor *identity.User, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RolePatient:
		if d.UploadedBy != actor.ID {
			return ErrForbidden
		}
	case auth.RolePhysician:
		patient, err := s.directory.GetPatient(ctx, d.PatientID)
		if err != nil {
			return err
		}
		if patient.AssignedPhysicianID == nil || *patient.AssignedPhysicianID != actor.ID {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}

	if err := s.store.Delete(ctx, d.ObjectKey); err != nil {
		// The record must not outlive a failed object delete silently; log
		// and continue so the row can still be removed by an admin retry.
		s.logger.Warn().Err(err).Str("object_key", d.ObjectKey).Msg("object delete failed")
	}
	return s.repo.Delete(ctx, id)
}
