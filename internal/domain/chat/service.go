package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pulse-health/pulse-api/internal/platform/db"
	"github.com/pulse-health/pulse-api/internal/platform/events"
	"github.com/pulse-health/pulse-api/internal/platform/telemetry"
)

// dedupeMaxAttempts bounds the serialization-failure retry loop for the
// get-or-create transaction.
const dedupeMaxAttempts = 3

type Service struct {
	chats     Repository
	messages  MessageRepository
	publisher events.Publisher
	metrics   *telemetry.TelemetryProvider
	logger    zerolog.Logger

	// inTx runs fn inside a SERIALIZABLE transaction carried on the context.
	// Swappable so unit tests run without a live pool.
	inTx func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewService(
	chats Repository,
	messages MessageRepository,
	pool *pgxpool.Pool,
	publisher events.Publisher,
	metrics *telemetry.TelemetryProvider,
	logger zerolog.Logger,
) *Service {
	return &Service{
		chats:     chats,
		messages:  messages,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With().Str("component", "chat").Logger(),
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.InSerializableTx(ctx, pool, dedupeMaxAttempts, fn)
		},
	}
}

// GetOrCreateActiveChat returns the patient's single active chat, creating
// one when none exists. Insert-first, reconcile-after: every caller inserts
// its own candidate row, then all concurrent callers converge on the same
// survivor (oldest by created_at, id as tiebreaker) and delete the rest.
// A reconcile that dies half-way self-heals on the next call.
func (s *Service) GetOrCreateActiveChat(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	var survivor uuid.UUID
	var reconciled bool

	err := s.inTx(ctx, func(ctx context.Context) error {
		reconciled = false
		c := &Chat{PatientID: patientID, Status: StatusActive}
		if err := s.chats.Insert(ctx, c); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}

		active, err := s.chats.ListActiveByPatient(ctx, patientID)
		if err != nil {
			return fmt.Errorf("list active chats: %w", err)
		}
		if len(active) == 1 {
			survivor = active[0].ID
			return nil
		}

		sortByAge(active)
		survivor = active[0].ID
		for _, dup := range active[1:] {
			// A concurrent reconciler may have removed the duplicate already.
			if err := s.chats.Delete(ctx, dup.ID); err != nil && !errors.Is(err, ErrChatNotFound) {
				return fmt.Errorf("delete duplicate chat: %w", err)
			}
		}
		reconciled = true
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if reconciled {
		s.logger.Info().
			Str("patient_id", patientID.String()).
			Str("chat_id", survivor.String()).
			Msg("reconciled duplicate active chats")
		if s.metrics != nil {
			s.metrics.ChatReconciled()
		}
	}
	return survivor, nil
}

// sortByAge orders chats oldest first; ties on created_at break on id so
// every concurrent reconciler picks the same survivor.
func sortByAge(chats []*Chat) {
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.Before(chats[j].CreatedAt)
		}
		return chats[i].ID.String() < chats[j].ID.String()
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Chat, error) {
	return s.chats.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Chat, int, error) {
	return s.chats.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListEscalatedForPhysician(ctx context.Context, physicianID uuid.UUID, limit, offset int) ([]*Chat, int, error) {
	return s.chats.ListEscalatedByPhysician(ctx, physicianID, limit, offset)
}

// Escalate hands the chat to a physician for review.
func (s *Service) Escalate(ctx context.Context, chatID, physicianID uuid.UUID) (*Chat, error) {
	c, err := s.chats.MarkEscalated(ctx, chatID, physicianID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.KeyChatEscalated, c)
	return c, nil
}

// Resolve closes the chat. Resolved is terminal; the patient's next message
// starts a fresh chat.
func (s *Service) Resolve(ctx context.Context, chatID uuid.UUID) (*Chat, error) {
	c, err := s.chats.MarkResolved(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.KeyChatResolved, c)
	return c, nil
}

// ResolveChat closes the chat behind a resolved escalation. It satisfies
// the resolver hook the escalation service calls.
func (s *Service) ResolveChat(ctx context.Context, chatID uuid.UUID) error {
	_, err := s.Resolve(ctx, chatID)
	return err
}

func (s *Service) publish(ctx context.Context, key string, c *Chat) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, events.ChatEvent{
		ChatID:      c.ID,
		PatientID:   c.PatientID,
		PhysicianID: c.EscalatedTo,
		Status:      c.Status,
	}); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("publish chat event failed")
	}
}

// AddMessage appends a turn to the chat.
func (s *Service) AddMessage(ctx context.Context, chatID uuid.UUID, role, content string, metadata map[string]interface{}) (*ChatMessage, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is required")
	}
	m := &ChatMessage{ChatID: chatID, Role: role, Content: content, Metadata: metadata}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Messages returns the chat history in chronological order.
func (s *Service) Messages(ctx context.Context, chatID uuid.UUID) ([]*ChatMessage, error) {
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, chatID)
}

// CountActive reports the number of active chats, for the metrics loop.
func (s *Service) CountActive(ctx context.Context) (int64, error) {
	return s.chats.CountActive(ctx)
}
