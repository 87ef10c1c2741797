package documents

import (
	"time"

	"github.com/google/uuid"
)

// Document categories.
const (
	CategoryLabResult    = "lab_result"
	CategoryPrescription = "prescription"
	CategoryImaging      = "imaging"
	CategoryNotes        = "notes"
	CategoryOther        = "other"
)

// ValidCategory reports whether c is a known document category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryLabResult, CategoryPrescription, CategoryImaging, CategoryNotes, CategoryOther:
		return true
	}
	return false
}

// Document is the metadata record for a file held in object storage. The
// bytes themselves never pass through the API; ObjectKey points at the
// stored object and transfers happen over presigned URLs.
type Document struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	UploadedBy  uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	ObjectKey   string    `db:"object_key" json:"object_key"`
	Category    string    `db:"category" json:"category"`
	Description *string   `db:"description" json:"description,omitempty"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}
