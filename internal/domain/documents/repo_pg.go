package documents

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

const documentCols = `id, patient_id, uploaded_by, file_name, content_type, object_key,
	category, description, uploaded_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.UploadedBy, &d.FileName, &d.ContentType,
		&d.ObjectKey, &d.Category, &d.Description, &d.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO document (id, patient_id, uploaded_by, file_name, content_type, object_key, category, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING uploaded_at`,
		d.ID, d.PatientID, d.UploadedBy, d.FileName, d.ContentType, d.ObjectKey, d.Category, d.Description).
		Scan(&d.UploadedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+documentCols+` FROM document WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error) {
	countSQL := `SELECT COUNT(*) FROM document WHERE patient_id = $1`
	listSQL := `SELECT ` + documentCols + ` FROM document WHERE patient_id = $1
		ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`
	args := []interface{}{patientID, limit, offset}
	if category != "" {
		countSQL = `SELECT COUNT(*) FROM document WHERE patient_id = $1 AND category = $2`
		listSQL = `SELECT ` + documentCols + ` FROM document WHERE patient_id = $1 AND category = $2
			ORDER BY uploaded_at DESC LIMIT $3 OFFSET $4`
		args = []interface{}{patientID, category, limit, offset}
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

	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateMetadata(ctx context.Context, id uuid.UUID, category *string, description *string) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx, `
		UPDATE document SET
			category = COALESCE($2, category),
			description = COALESCE($3, description)
		WHERE id = $1
		RETURNING `+documentCols,
		id, category, description))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
