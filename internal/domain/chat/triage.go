package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/domain/escalation"
	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/assistant"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

// ErrAssistantUnavailable marks an upstream assistant failure. The patient
// still receives a friendly fixed reply; the error is logged for operators.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// Patient-facing fixed replies. These are product copy and must not drift.
const (
	apologyMessage = "I'm sorry, I encountered an error processing your message. Please try again, or if the issue persists, contact support."

	escalatedNotice = "I've escalated your concern to your physician. They will review your case and reach out to you soon. In the meantime, if this is a medical emergency, please call 911 or go to your nearest emergency room."

	unassignedNotice = "I understand this is a concern that needs medical attention. We've flagged this for review by our medical staff, but you don't currently have an assigned physician. Someone will follow up with you as soon as possible. If this is a medical emergency, please call 911 or go to your nearest emergency room immediately."
)

// Escalator opens escalations for flagged conversations. Satisfied by the
// escalation service.
type Escalator interface {
	Create(ctx context.Context, chatID, patientID, physicianID uuid.UUID, reason string) (*escalation.Escalation, error)
	CreateUnassigned(ctx context.Context, chatID, patientID uuid.UUID, reason string) (*escalation.Escalation, error)
}

// PatientDirectory resolves patient profiles for conversation context.
// Satisfied by the identity service.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// Triage runs the assistant conversation loop: context assembly, the
// assistant call, reply parsing, and the escalation side effects.
type Triage struct {
	svc         *Service
	escalations Escalator
	directory   PatientDirectory
	provider    assistant.Provider
	metrics     *telemetry.TelemetryProvider
	logger      zerolog.Logger
}

func NewTriage(
	svc *Service,
	escalations Escalator,
	directory PatientDirectory,
	provider assistant.Provider,
	metrics *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Triage {
	return &Triage{
		svc:         svc,
		escalations: escalations,
		directory:   directory,
		provider:    provider,
		metrics:     metrics,
		logger:      logger.With().Str("component", "triage").Logger(),
	}
}

// SendMessage runs one triage turn and returns the patient-facing reply.
// The user message is always persisted before the reply, in every branch.
// A message to a resolved chat transparently starts a fresh chat.
func (t *Triage) SendMessage(ctx context.Context, chatID uuid.UUID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("message content is required")
	}

	chat, err := t.svc.Get(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat.Status == StatusResolved {
		freshID, err := t.svc.GetOrCreateActiveChat(ctx, chat.PatientID)
		if err != nil {
			return "", fmt.Errorf("reopen conversation: %w", err)
		}
		chat, err = t.svc.Get(ctx, freshID)
		if err != nil {
			return "", err
		}
	}

	// The profile is optional context; a chat can outlive a deleted profile.
	patient, err := t.directory.GetPatient(ctx, chat.PatientID)
	if err != nil {
		patient = nil
	}

	turns, err := t.assembleContext(ctx, chat, patient, content)
	if err != nil {
		return "", err
	}

	start := time.Now()
	raw, err := t.provider.Chat(ctx, turns)
	elapsed := time.Since(start)
	if err != nil {
		t.observe("failure", elapsed)
		t.logger.Warn().
			Err(fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)).
			Str("chat_id", chat.ID.String()).
			Msg("assistant call failed, returning degraded reply")
		if perr := t.persistTurn(ctx, chat.ID, content, apologyMessage, nil); perr != nil {
			return "", perr
		}
		return apologyMessage, nil
	}

	reply := assistant.ParseReply(raw)
	if !reply.Escalated {
		t.observe("success", elapsed)
		if perr := t.persistTurn(ctx, chat.ID, content, reply.Text, nil); perr != nil {
			return "", perr
		}
		return reply.Text, nil
	}

	t.observe("escalated", elapsed)
	return t.escalate(ctx, chat, patient, content, reply.Reason)
}

// escalate opens the escalation and returns the fixed patient-facing notice.
// The assistant's raw reply, including the reason, never reaches the patient.
func (t *Triage) escalate(ctx context.Context, chat *Chat, patient *identity.Patient, content, reason string) (string, error) {
	if patient != nil && patient.AssignedPhysicianID != nil {
		esc, err := t.escalations.Create(ctx, chat.ID, chat.PatientID, *patient.AssignedPhysicianID, reason)
		if err != nil {
			return "", fmt.Errorf("create escalation: %w", err)
		}
		if _, err := t.svc.Escalate(ctx, chat.ID, *patient.AssignedPhysicianID); err != nil {
			t.logger.Warn().Err(err).Str("chat_id", chat.ID.String()).Msg("chat escalation transition failed")
		}
		if perr := t.persistTurn(ctx, chat.ID, content, escalatedNotice, escalationMeta(esc)); perr != nil {
			return "", perr
		}
		return escalatedNotice, nil
	}

	esc, err := t.escalations.CreateUnassigned(ctx, chat.ID, chat.PatientID, reason)
	if err != nil {
		// Includes the zero-admins configuration error, which must surface
		// rather than be swallowed behind a friendly reply.
		return "", err
	}
	if _, err := t.svc.Escalate(ctx, chat.ID, esc.PhysicianID); err != nil {
		t.logger.Warn().Err(err).Str("chat_id", chat.ID.String()).Msg("chat escalation transition failed")
	}
	if perr := t.persistTurn(ctx, chat.ID, content, unassignedNotice, escalationMeta(esc)); perr != nil {
		return "", perr
	}
	return unassignedNotice, nil
}

// assembleContext builds the assistant conversation: the system prompt, one
// patient-identity line, the prior history in order, then the new user turn.
func (t *Triage) assembleContext(ctx context.Context, chat *Chat, patient *identity.Patient, content string) ([]assistant.Message, error) {
	history, err := t.svc.Messages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	turns := []assistant.Message{{Role: assistant.RoleSystem, Content: assistant.SystemPrompt}}
	if patient != nil {
		turns = append(turns, assistant.Message{
			Role:    assistant.RoleSystem,
			Content: "Patient context: " + patient.FullName(),
		})
	}
	for _, m := range history {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			turns = append(turns, assistant.Message{Role: m.Role, Content: m.Content})
		}
	}
	return append(turns, assistant.Message{Role: assistant.RoleUser, Content: content}), nil
}

// persistTurn writes the user message and then the assistant reply.
func (t *Triage) persistTurn(ctx context.Context, chatID uuid.UUID, userContent, replyContent string, meta map[string]interface{}) error {
	if _, err := t.svc.AddMessage(ctx, chatID, RoleUser, userContent, nil); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	if _, err := t.svc.AddMessage(ctx, chatID, RoleAssistant, replyContent, meta); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	return nil
}

func (t *Triage) observe(outcome string, elapsed time.Duration) {
	if t.metrics != nil {
		t.metrics.AssistantCall(outcome, elapsed)
	}
}

func escalationMeta(esc *escalation.Escalation) map[string]interface{} {
	return map[string]interface{}{
		"escalation_id": esc.ID.String(),
		"severity":      string(esc.Severity),
	}
}
