package identity

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

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `id, external_id, email, name, role, created_at, last_login_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Role,
		&u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return &u, err
}

func (r *userRepoPG) Upsert(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, external_id, email, name, role, last_login_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			last_login_at = NOW()
		RETURNING id, created_at, last_login_at`,
		u.ID, u.ExternalID, u.Email, u.Name, u.Role).
		Scan(&u.ID, &u.CreatedAt, &u.LastLoginAt)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE external_id = $1`, externalID))
}

func (r *userRepoPG) FirstAdmin(ctx context.Context) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT `+userCols+` FROM app_user
		WHERE role = 'admin'
		ORDER BY created_at ASC, id ASC
		LIMIT 1`))
}

func (r *userRepoPG) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	countSQL := `SELECT COUNT(*) FROM app_user`
	listSQL := `SELECT ` + userCols + ` FROM app_user ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	args := []interface{}{limit, offset}
	if role != "" {
		countSQL = `SELECT COUNT(*) FROM app_user WHERE role = $1`
		listSQL = `SELECT ` + userCols + ` FROM app_user WHERE role = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = []interface{}{role, limit, offset}
	}

	var total int
	countArgs := args[:len(args)-2]
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, user_id, first_name, last_name, date_of_birth, phone_number,
	emergency_contact_name, emergency_contact_relationship, emergency_contact_phone,
	assigned_physician_id, consent_status, consent_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.DateOfBirth,
		&p.PhoneNumber, &p.EmergencyContactName, &p.EmergencyContactRelationship,
		&p.EmergencyContactPhone, &p.AssignedPhysicianID, &p.ConsentStatus,
		&p.ConsentAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, first_name, last_name, date_of_birth,
			phone_number, emergency_contact_name, emergency_contact_relationship,
			emergency_contact_phone, assigned_physician_id, consent_status, consent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.DateOfBirth,
		p.PhoneNumber, p.EmergencyContactName, p.EmergencyContactRelationship,
		p.EmergencyContactPhone, p.AssignedPhysicianID, p.ConsentStatus, p.ConsentAt).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4,
			phone_number=$5, emergency_contact_name=$6,
			emergency_contact_relationship=$7, emergency_contact_phone=$8,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth,
		p.PhoneNumber, p.EmergencyContactName,
		p.EmergencyContactRelationship, p.EmergencyContactPhone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) UpdateConsent(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET consent_status=$2, consent_at=NOW(), updated_at=NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) AssignPhysician(ctx context.Context, id uuid.UUID, physicianUserID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET assigned_physician_id=$2, updated_at=NOW()
		WHERE id = $1`, id, physicianUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) ListByPhysician(ctx context.Context, physicianUserID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE assigned_physician_id = $1`, physicianUserID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE assigned_physician_id = $1
		ORDER BY last_name ASC, first_name ASC
		LIMIT $2 OFFSET $3`, physicianUserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		ORDER BY last_name ASC, first_name ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

// =========== Physician Repository ===========

type physicianRepoPG struct{ pool *pgxpool.Pool }

func NewPhysicianRepoPG(pool *pgxpool.Pool) PhysicianRepository {
	return &physicianRepoPG{pool: pool}
}

func (r *physicianRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const physicianCols = `id, user_id, first_name, last_name, specialty, license_number,
	created_at, updated_at`

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Specialty,
		&p.LicenseNumber, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPhysicianNotFound
	}
	return &p, err
}

func (r *physicianRepoPG) Create(ctx context.Context, p *Physician) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO physician (id, user_id, first_name, last_name, specialty, license_number)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Specialty, p.LicenseNumber).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *physicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return scanPhysician(r.conn(ctx).QueryRow(ctx, `SELECT `+physicianCols+` FROM physician WHERE id = $1`, id))
}

func (r *physicianRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Physician, error) {
	return scanPhysician(r.conn(ctx).QueryRow(ctx, `SELECT `+physicianCols+` FROM physician WHERE user_id = $1`, userID))
}

func (r *physicianRepoPG) List(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM physician`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+physicianCols+` FROM physician
		ORDER BY last_name ASC, first_name ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Physician
	for rows.Next() {
		p, err := scanPhysician(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
