package audit

import (
	"testing"
)

func TestSanitize_DeniedFieldsRedacted(t *testing.T) {
	p := DefaultPolicy()

	input := map[string]interface{}{
		"password":       "hunter2",
		"ssn":            "123-45-6789",
		"dateOfBirth":    "1990-01-01",
		"phoneNumber":    "555-0100",
		"email":          "pat@example.com",
		"medicalHistory": []interface{}{"asthma"},
		"symptoms":       "chest pain",
		"content":        "I have severe pain in my chest",
	}

	out := Sanitize(p, input)
	for field := range input {
		if out[field] != Redacted {
			t.Errorf("expected %s to be redacted, got %v", field, out[field])
		}
	}
}

// Deny-list matching is case-insensitive: casing variants of a sensitive
// field must still be redacted rather than falling through to the type
// placeholder.
func TestSanitize_DeniedFieldsRedactedCaseInsensitive(t *testing.T) {
	p := DefaultPolicy()

	input := map[string]interface{}{
		"DOB":         "1990-01-01",
		"Content":     "I have severe pain in my chest",
		"EMAIL":       "pat@example.com",
		"DateOfBirth": "1990-01-01",
		"Password":    "hunter2",
	}

	out := Sanitize(p, input)
	for field := range input {
		if out[field] != Redacted {
			t.Errorf("expected %s to be redacted, got %v", field, out[field])
		}
	}
}

func TestSanitize_AllowedPrimitivesKept(t *testing.T) {
	p := DefaultPolicy()

	input := map[string]interface{}{
		"patientId": "abc-123",
		"status":    "active",
		"page":      float64(2),
		"limit":     float64(20),
		"role":      "physician",
	}

	out := Sanitize(p, input)
	for field, want := range input {
		if out[field] != want {
			t.Errorf("expected %s to pass through as %v, got %v", field, want, out[field])
		}
	}
}

func TestSanitize_AllowedCompositeBecomesObject(t *testing.T) {
	p := DefaultPolicy()

	out := Sanitize(p, map[string]interface{}{
		"patientId": map[string]interface{}{"$gt": ""},
	})
	if out["patientId"] != "[OBJECT]" {
		t.Errorf("expected composite allowed value to become [OBJECT], got %v", out["patientId"])
	}
}

func TestSanitize_UnknownFieldsReducedToType(t *testing.T) {
	p := DefaultPolicy()

	input := map[string]interface{}{
		"nickname":    "patty",
		"visitCount":  float64(3),
		"isUrgent":    true,
		"attachments": []interface{}{"a", "b"},
		"metadata":    map[string]interface{}{"k": "v"},
		"missing":     nil,
	}

	want := map[string]string{
		"nickname":    "[string]",
		"visitCount":  "[number]",
		"isUrgent":    "[boolean]",
		"attachments": "[array]",
		"metadata":    "[object]",
		"missing":     "[null]",
	}

	out := Sanitize(p, input)
	for field, expected := range want {
		if out[field] != expected {
			t.Errorf("expected %s -> %s, got %v", field, expected, out[field])
		}
	}
}

// Every field must fall into exactly one of the three outcomes: redacted,
// passed through (allowed primitive), or reduced to a type placeholder. No
// raw value may survive for a field that is not explicitly allowed.
func TestSanitize_FailClosed(t *testing.T) {
	p := DefaultPolicy()

	input := map[string]interface{}{
		"someNewField":    "sensitive free text",
		"anotherNewField": map[string]interface{}{"nested": "secret"},
	}

	out := Sanitize(p, input)
	for field, raw := range input {
		got := out[field]
		if got == raw {
			t.Errorf("unknown field %s leaked its raw value", field)
		}
		s, ok := got.(string)
		if !ok || len(s) == 0 || s[0] != '[' {
			t.Errorf("unknown field %s should reduce to a placeholder, got %v", field, got)
		}
	}
}

func TestSanitize_NilInput(t *testing.T) {
	if out := Sanitize(DefaultPolicy(), nil); out != nil {
		t.Errorf("expected nil output for nil input, got %v", out)
	}
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	p := DefaultPolicy()
	input := map[string]interface{}{"password": "secret"}
	Sanitize(p, input)
	if input["password"] != "secret" {
		t.Error("Sanitize must not mutate its input")
	}
}

func TestDefaultPolicy_Version(t *testing.T) {
	p := DefaultPolicy()
	if p.Version != PolicyVersion {
		t.Errorf("expected policy version %s, got %s", PolicyVersion, p.Version)
	}
}

func TestPolicy_Classification(t *testing.T) {
	p := DefaultPolicy()
	if !p.Denied("password") {
		t.Error("expected password to be denied")
	}
	if !p.Allowed("chatId") {
		t.Error("expected chatId to be allowed")
	}
	if p.Denied("chatId") || p.Allowed("password") {
		t.Error("deny and allow lists must not overlap")
	}
	if p.Denied("brandNewField") || p.Allowed("brandNewField") {
		t.Error("unknown fields must be in neither list")
	}
}
