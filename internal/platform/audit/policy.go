package audit

import "strings"

// Policy classifies request fields before they are written to the audit log.
// Classification is fail-closed: a field is only logged verbatim when it is
// explicitly allowed, denied fields are redacted, and anything unrecognized
// is reduced to its type name.
type Policy struct {
	// Version identifies the policy revision recorded alongside each entry,
	// so historical entries can be interpreted against the rules that
	// produced them.
	Version string

	denied  map[string]bool
	allowed map[string]bool
}

// PolicyVersion is the current audit sanitization policy revision.
const PolicyVersion = "v1"

// deniedFields are always redacted. This covers credentials, identifiers,
// contact details, and clinical content.
var deniedFields = []string{
	"password",
	"ssn",
	"socialSecurityNumber",
	"dateOfBirth",
	"dob",
	"phoneNumber",
	"phone",
	"email",
	"address",
	"medicalHistory",
	"diagnosis",
	"treatment",
	"prescription",
	"labResults",
	"symptoms",
	"notes",
	"content",
	"emergencyContact",
	"insuranceNumber",
	"creditCard",
	"bankAccount",
}

// allowedFields are safe to log verbatim when the value is a primitive.
// These are identifiers and enumerated values that carry no clinical content.
var allowedFields = []string{
	"id",
	"_id",
	"patientId",
	"userId",
	"documentId",
	"chatId",
	"category",
	"action",
	"status",
	"role",
	"type",
	"page",
	"limit",
	"sortBy",
	"sortOrder",
}

// DefaultPolicy returns the current sanitization policy.
func DefaultPolicy() *Policy {
	p := &Policy{
		Version: PolicyVersion,
		denied:  make(map[string]bool, len(deniedFields)),
		allowed: make(map[string]bool, len(allowedFields)),
	}
	for _, f := range deniedFields {
		p.denied[f] = true
		p.denied[strings.ToLower(f)] = true
	}
	for _, f := range allowedFields {
		p.allowed[f] = true
	}
	return p
}

// Denied reports whether the field must always be redacted. Matching is
// case-insensitive so variants like "DOB" or "Email" cannot slip past the
// deny list.
func (p *Policy) Denied(field string) bool {
	if p.denied[field] {
		return true
	}
	return p.denied[strings.ToLower(field)]
}

// Allowed reports whether the field may be logged verbatim.
func (p *Policy) Allowed(field string) bool {
	return p.allowed[field]
}
