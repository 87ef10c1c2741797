package escalation

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

const escalationCols = `id, chat_id, patient_id, physician_id, reason, severity, status,
	created_at, acknowledged_at, resolved_at, notes`

// severityRank orders escalations most severe first in SQL.
const severityRank = `CASE severity
	WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END`

func scanEscalation(row pgx.Row) (*Escalation, error) {
	var e Escalation
	err := row.Scan(&e.ID, &e.ChatID, &e.PatientID, &e.PhysicianID, &e.Reason,
		&e.Severity, &e.Status, &e.CreatedAt, &e.AcknowledgedAt, &e.ResolvedAt, &e.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEscalationNotFound
	}
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Escalation) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO escalation (id, chat_id, patient_id, physician_id, reason, severity, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		e.ID, e.ChatID, e.PatientID, e.PhysicianID, e.Reason, e.Severity, e.Status).
		Scan(&e.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	return scanEscalation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+escalationCols+` FROM escalation WHERE id = $1`, id))
}

func (r *repoPG) GetByChat(ctx context.Context, chatID uuid.UUID) (*Escalation, error) {
	return scanEscalation(r.conn(ctx).QueryRow(ctx, `
		SELECT `+escalationCols+` FROM escalation
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, chatID))
}

func (r *repoPG) MarkAcknowledged(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	e, err := scanEscalation(r.conn(ctx).QueryRow(ctx, `
		UPDATE escalation SET status = $2, acknowledged_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING `+escalationCols,
		id, StatusAcknowledged, StatusPending))
	if errors.Is(err, ErrEscalationNotFound) {
		// Distinguish a missing row from a bad starting status.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return e, err
}

func (r *repoPG) MarkResolved(ctx context.Context, id uuid.UUID, notes *string) (*Escalation, error) {
	e, err := scanEscalation(r.conn(ctx).QueryRow(ctx, `
		UPDATE escalation SET status = $2, resolved_at = NOW(), notes = $3
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING `+escalationCols,
		id, StatusResolved, notes, StatusPending, StatusAcknowledged))
	if errors.Is(err, ErrEscalationNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return e, err
}

func (r *repoPG) ListByPhysician(ctx context.Context, physicianID uuid.UUID, status string, limit, offset int) ([]*Escalation, int, error) {
	countSQL := `SELECT COUNT(*) FROM escalation WHERE physician_id = $1`
	listSQL := `SELECT ` + escalationCols + ` FROM escalation WHERE physician_id = $1
		ORDER BY ` + severityRank + ` DESC, created_at ASC LIMIT $2 OFFSET $3`
	args := []interface{}{physicianID, limit, offset}
	if status != "" {
		countSQL = `SELECT COUNT(*) FROM escalation WHERE physician_id = $1 AND status = $2`
		listSQL = `SELECT ` + escalationCols + ` FROM escalation WHERE physician_id = $1 AND status = $2
			ORDER BY ` + severityRank + ` DESC, created_at ASC LIMIT $3 OFFSET $4`
		args = []interface{}{physicianID, status, limit, offset}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Escalation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM escalation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+escalationCols+` FROM escalation
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func (r *repoPG) ListPending(ctx context.Context, severity Severity, limit, offset int) ([]*Escalation, int, error) {
	countSQL := `SELECT COUNT(*) FROM escalation WHERE status = $1`
	listSQL := `SELECT ` + escalationCols + ` FROM escalation WHERE status = $1
		ORDER BY ` + severityRank + ` DESC, created_at ASC LIMIT $2 OFFSET $3`
	args := []interface{}{StatusPending, limit, offset}
	if severity != "" {
		countSQL = `SELECT COUNT(*) FROM escalation WHERE status = $1 AND severity = $2`
		listSQL = `SELECT ` + escalationCols + ` FROM escalation WHERE status = $1 AND severity = $2
			ORDER BY created_at ASC LIMIT $3 OFFSET $4`
		args = []interface{}{StatusPending, severity, limit, offset}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func (r *repoPG) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM escalation WHERE status <> $1`, StatusResolved).Scan(&n)
	return n, err
}

func collect(rows pgx.Rows, total int) ([]*Escalation, int, error) {
	var items []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
