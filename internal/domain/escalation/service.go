package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/notification"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

// Directory resolves users and patients for escalation routing and notices.
// Satisfied by *identity.Service.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	FirstAdmin(ctx context.Context) (*identity.User, error)
}

// ChatResolver closes the originating chat when an escalation resolves.
// Satisfied by the chat service.
type ChatResolver interface {
	ResolveChat(ctx context.Context, chatID uuid.UUID) error
}

type Service struct {
	repo      Repository
	directory Directory
	chats     ChatResolver
	publisher events.Publisher
	notifier  *notification.Notifier
	metrics   *telemetry.TelemetryProvider
	logger    zerolog.Logger
}

func NewService(
	repo Repository,
	directory Directory,
	publisher events.Publisher,
	notifier *notification.Notifier,
	metrics *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger.With().Str("component", "escalation").Logger(),
	}
}

// SetChatResolver wires the chat service after construction; the chat
// service itself depends on this one.
func (s *Service) SetChatResolver(chats ChatResolver) {
	s.chats = chats
}

// Create opens an escalation against the patient's assigned physician.
// Severity is derived from the reason.
func (s *Service) Create(ctx context.Context, chatID, patientID, physicianID uuid.UUID, reason string) (*Escalation, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("reason is required")
	}
	e := &Escalation{
		ChatID:      chatID,
		PatientID:   patientID,
		PhysicianID: physicianID,
		Reason:      reason,
		Severity:    ClassifySeverity(reason),
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	s.afterCreate(ctx, e, false)
	return e, nil
}

// CreateUnassigned opens an escalation for a patient with no assigned
// physician, routed to the oldest admin account. Zero admins is a fatal
// configuration error and surfaces as ErrNoAdminAvailable.
func (s *Service) CreateUnassigned(ctx context.Context, chatID, patientID uuid.UUID, reason string) (*Escalation, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("reason is required")
	}
	admin, err := s.directory.FirstAdmin(ctx)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, ErrNoAdminAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("look up fallback admin: %w", err)
	}
	e := &Escalation{
		ChatID:      chatID,
		PatientID:   patientID,
		PhysicianID: admin.ID,
		Reason:      UnassignedReasonPrefix + reason,
		Severity:    ClassifySeverity(reason),
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create unassigned escalation: %w", err)
	}
	s.afterCreate(ctx, e, true)
	return e, nil
}

// afterCreate emits telemetry, events, and notices. All best-effort; the
// escalation row is already durable.
func (s *Service) afterCreate(ctx context.Context, e *Escalation, unassigned bool) {
	s.logger.Info().
		Str("escalation_id", e.ID.String()).
		Str("severity", string(e.Severity)).
		Bool("unassigned", unassigned).
		Msg("escalation created")

	if s.metrics != nil {
		s.metrics.EscalationCreated(string(e.Severity))
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.KeyEscalationCreated, events.EscalationEvent{
			EscalationID: e.ID,
			ChatID:       e.ChatID,
			PatientID:    e.PatientID,
			PhysicianID:  &e.PhysicianID,
			Severity:     string(e.Severity),
			Status:       e.Status,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("publish escalation created event failed")
		}
	}
	if s.notifier != nil {
		recipient, err := s.directory.GetUser(ctx, e.PhysicianID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not resolve escalation recipient for notice")
			return
		}
		patientName := e.PatientID.String()
		if patient, err := s.directory.GetPatient(ctx, e.PatientID); err == nil {
			patientName = patient.FullName()
		}
		s.notifier.EscalationCreated(ctx, recipient.Email, "", patientName,
			string(e.Severity), e.Reason, unassigned)
	}
}

// Acknowledge moves a pending escalation to acknowledged. Only the assigned
// physician or an admin may acknowledge.
func (s *Service) Acknowledge(ctx context.Context, actor *identity.User, id uuid.UUID) (*Escalation, error) {
	if err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	e, err := s.repo.MarkAcknowledged(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.KeyEscalationAcked, events.EscalationEvent{
			EscalationID: e.ID,
			ChatID:       e.ChatID,
			PatientID:    e.PatientID,
			PhysicianID:  &e.PhysicianID,
			Severity:     string(e.Severity),
			Status:       e.Status,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("publish escalation acknowledged event failed")
		}
	}
	if s.notifier != nil {
		s.notifyPatient(ctx, e, func(email, name string) {
			actorName := actor.Email
			if actor.Name != nil {
				actorName = *actor.Name
			}
			s.notifier.EscalationAcknowledged(ctx, email, name, actorName)
		})
	}
	return e, nil
}

// Resolve closes an escalation with optional notes and resolves the
// originating chat so the patient can start a fresh conversation.
func (s *Service) Resolve(ctx context.Context, actor *identity.User, id uuid.UUID, notes *string) (*Escalation, error) {
	if err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	e, err := s.repo.MarkResolved(ctx, id, notes)
	if err != nil {
		return nil, err
	}

	if s.chats != nil {
		if err := s.chats.ResolveChat(ctx, e.ChatID); err != nil {
			s.logger.Warn().Err(err).
				Str("chat_id", e.ChatID.String()).
				Msg("escalation resolved but chat resolution failed")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.KeyEscalationResolved, events.EscalationEvent{
			EscalationID: e.ID,
			ChatID:       e.ChatID,
			PatientID:    e.PatientID,
			PhysicianID:  &e.PhysicianID,
			Severity:     string(e.Severity),
			Status:       e.Status,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("publish escalation resolved event failed")
		}
	}
	if s.notifier != nil {
		s.notifyPatient(ctx, e, func(email, name string) {
			s.notifier.EscalationResolved(ctx, email, name)
		})
	}
	return e, nil
}

func (s *Service) authorize(ctx context.Context, actor *identity.User, id uuid.UUID) error {
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	if actor.Role != auth.RolePhysician {
		return ErrForbidden
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.PhysicianID != actor.ID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) notifyPatient(ctx context.Context, e *Escalation, send func(email, name string)) {
	patient, err := s.directory.GetPatient(ctx, e.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not resolve patient for notice")
		return
	}
	user, err := s.directory.GetUser(ctx, patient.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not resolve patient account for notice")
		return
	}
	send(user.Email, patient.FullName())
}

// -- Queries --

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByChat(ctx context.Context, chatID uuid.UUID) (*Escalation, error) {
	return s.repo.GetByChat(ctx, chatID)
}

func (s *Service) ListByPhysician(ctx context.Context, physicianID uuid.UUID, status string, limit, offset int) ([]*Escalation, int, error) {
	if status != "" && status != StatusPending && status != StatusAcknowledged && status != StatusResolved {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.ListByPhysician(ctx, physicianID, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Escalation, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPending(ctx context.Context, severity Severity, limit, offset int) ([]*Escalation, int, error) {
	if severity != "" && !severity.Valid() {
		return nil, 0, fmt.Errorf("invalid severity: %s", severity)
	}
	return s.repo.ListPending(ctx, severity, limit, offset)
}

func (s *Service) CountOpen(ctx context.Context) (int64, error) {
	return s.repo.CountOpen(ctx)
}
