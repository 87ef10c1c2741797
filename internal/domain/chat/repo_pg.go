package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulse-health/pulse-api/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const chatCols = `id, patient_id, status, created_at, escalated_at, escalated_to`

func scanChat(row pgx.Row) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.PatientID, &c.Status, &c.CreatedAt, &c.EscalatedAt, &c.EscalatedTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	return &c, err
}

func (r *repoPG) Insert(ctx context.Context, c *Chat) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat (id, patient_id, status)
		VALUES ($1,$2,$3)
		RETURNING created_at`,
		c.ID, c.PatientID, c.Status).
		Scan(&c.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Chat, error) {
	return scanChat(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chatCols+` FROM chat WHERE id = $1`, id))
}

func (r *repoPG) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*Chat, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+chatCols+` FROM chat
		WHERE patient_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC`, patientID, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM chat WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Chat, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+chatCols+` FROM chat
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectChats(rows, total)
}

func (r *repoPG) ListEscalatedByPhysician(ctx context.Context, physicianID uuid.UUID, limit, offset int) ([]*Chat, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat WHERE escalated_to = $1 AND status = $2`,
		physicianID, StatusEscalated).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+chatCols+` FROM chat
		WHERE escalated_to = $1 AND status = $2
		ORDER BY escalated_at ASC
		LIMIT $3 OFFSET $4`, physicianID, StatusEscalated, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectChats(rows, total)
}

func (r *repoPG) MarkEscalated(ctx context.Context, id, physicianID uuid.UUID) (*Chat, error) {
	c, err := scanChat(r.conn(ctx).QueryRow(ctx, `
		UPDATE chat SET status = $2, escalated_at = NOW(), escalated_to = $3
		WHERE id = $1 AND status = $4
		RETURNING `+chatCols,
		id, StatusEscalated, physicianID, StatusActive))
	if errors.Is(err, ErrChatNotFound) {
		// Distinguish a missing row from a bad starting status.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return c, err
}

func (r *repoPG) MarkResolved(ctx context.Context, id uuid.UUID) (*Chat, error) {
	c, err := scanChat(r.conn(ctx).QueryRow(ctx, `
		UPDATE chat SET status = $2
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING `+chatCols,
		id, StatusResolved, StatusActive, StatusEscalated))
	if errors.Is(err, ErrChatNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return c, err
}

func (r *repoPG) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat WHERE status = $1`, StatusActive).Scan(&n)
	return n, err
}

func collectChats(rows pgx.Rows, total int) ([]*Chat, int, error) {
	var items []*Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const messageCols = `id, chat_id, role, content, created_at, metadata`

func (r *messageRepoPG) Insert(ctx context.Context, m *ChatMessage) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_message (id, chat_id, role, content, metadata)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		m.ID, m.ChatID, m.Role, m.Content, m.Metadata).
		Scan(&m.CreatedAt)
}

func (r *messageRepoPG) ListByChat(ctx context.Context, chatID uuid.UUID) ([]*ChatMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM chat_message
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt, &m.Metadata); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
