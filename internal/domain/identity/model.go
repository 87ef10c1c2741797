package identity

import (
	"time"

	"github.com/google/uuid"
)

// Consent statuses for a patient profile.
const (
	ConsentPending = "pending"
	ConsentGranted = "granted"
	ConsentRevoked = "revoked"
)

// User mirrors an account at the external identity provider. Credentials
// live at the provider; we only keep the claims we need for authorization
// and escalation routing.
type User struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"external_id"`
	Email       string     `db:"email" json:"email"`
	Name        *string    `db:"name" json:"name,omitempty"`
	Role        string     `db:"role" json:"role"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Patient is the clinical profile attached to a user with the patient role.
type Patient struct {
	ID                           uuid.UUID  `db:"id" json:"id"`
	UserID                       uuid.UUID  `db:"user_id" json:"user_id"`
	FirstName                    string     `db:"first_name" json:"first_name"`
	LastName                     string     `db:"last_name" json:"last_name"`
	DateOfBirth                  time.Time  `db:"date_of_birth" json:"date_of_birth"`
	PhoneNumber                  *string    `db:"phone_number" json:"phone_number,omitempty"`
	EmergencyContactName         *string    `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactRelationship *string    `db:"emergency_contact_relationship" json:"emergency_contact_relationship,omitempty"`
	EmergencyContactPhone        *string    `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	AssignedPhysicianID          *uuid.UUID `db:"assigned_physician_id" json:"assigned_physician_id,omitempty"`
	ConsentStatus                string     `db:"consent_status" json:"consent_status"`
	ConsentAt                    *time.Time `db:"consent_at" json:"consent_at,omitempty"`
	CreatedAt                    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Physician is the professional profile attached to a user with the
// physician role.
type Physician struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Specialty     string    `db:"specialty" json:"specialty"`
	LicenseNumber string    `db:"license_number" json:"license_number"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the physician's display name.
func (p *Physician) FullName() string {
	return p.FirstName + " " + p.LastName
}
