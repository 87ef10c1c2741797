package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
)

// captureSink records entries in memory for assertions.
type captureSink struct {
	policy  *Policy
	entries []*Entry
}

func (s *captureSink) Record(ctx context.Context, entry *Entry) {
	entry.Input = Sanitize(s.policy, entry.Input)
	entry.PolicyVersion = s.policy.Version
	s.entries = append(s.entries, entry)
}

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), auth.SubjectKey, "user-1")
	ctx = context.WithValue(ctx, auth.RoleKey, auth.RolePatient)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func TestMiddleware_RecordsSanitizedEntry(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodPost, "/chats/123/messages",
		`{"content":"I have chest pain","chatId":"chat-1"}`)
	c.SetPath("/chats/:id/messages")

	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]

	if entry.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", entry.UserID)
	}
	if entry.UserRole != auth.RolePatient {
		t.Errorf("expected patient role, got %s", entry.UserRole)
	}
	if entry.Action != "create" {
		t.Errorf("expected create action, got %s", entry.Action)
	}
	if entry.ResourceType != "chats" {
		t.Errorf("expected chats resource, got %s", entry.ResourceType)
	}
	if !entry.Success {
		t.Error("expected success entry")
	}
	if entry.Input["content"] != Redacted {
		t.Errorf("expected message content to be redacted, got %v", entry.Input["content"])
	}
	if entry.Input["chatId"] != "chat-1" {
		t.Errorf("expected chatId passed through, got %v", entry.Input["chatId"])
	}
}

// Routes are mounted under the /api/v1 group in production, so the resource
// type must come from the segment after the prefix, not the prefix itself.
func TestMiddleware_ResourceTypeUnderAPIPrefix(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodPost, "/api/v1/chats/8e3f5a0e-8f4c-4a6a-9a51-2b4f3c9d1e7a/messages",
		`{"content":"hello"}`)
	c.SetPath("/api/v1/chats/:id/messages")

	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(sink.entries))
	}
	if got := sink.entries[0].ResourceType; got != "chats" {
		t.Errorf("expected chats resource, got %s", got)
	}
}

func TestMiddleware_SkipsUnauthenticatedRequests(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/escalations", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/escalations")

	h := mw(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	})
	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if len(sink.entries) != 0 {
		t.Errorf("expected no audit entry without a subject, got %d", len(sink.entries))
	}
}

func TestMiddleware_BodyStillReadableByHandler(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodPost, "/chats", `{"patientId":"p-1"}`)
	c.SetPath("/chats")

	var bound struct {
		PatientID string `json:"patientId"`
	}
	h := mw(func(c echo.Context) error {
		if err := c.Bind(&bound); err != nil {
			return err
		}
		return c.NoContent(http.StatusCreated)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bound.PatientID != "p-1" {
		t.Errorf("expected handler to read body after audit capture, got %q", bound.PatientID)
	}
}

func TestMiddleware_RecordsFailure(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodGet, "/escalations", "")
	c.SetPath("/escalations")

	h := mw(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "required role: physician")
	})
	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Success {
		t.Error("expected failure entry")
	}
	if entry.Error == "" {
		t.Error("expected error message in entry")
	}
	if entry.Action != "read" {
		t.Errorf("expected read action, got %s", entry.Action)
	}
}

func TestMiddleware_SkipsPublicPaths(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodGet, "/health", "")
	c.SetPath("/health")

	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.entries) != 0 {
		t.Errorf("expected no audit entry for public path, got %d", len(sink.entries))
	}
}

func TestMiddleware_QueryParamsCaptured(t *testing.T) {
	sink := &captureSink{policy: DefaultPolicy()}
	mw := Middleware(sink)

	c, _ := newTestContext(http.MethodGet, "/documents?category=lab_result&patientId=p-1", "")
	c.SetPath("/documents")

	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := sink.entries[0]
	if entry.Input["category"] != "lab_result" {
		t.Errorf("expected category param captured, got %v", entry.Input["category"])
	}
	if entry.Input["patientId"] != "p-1" {
		t.Errorf("expected patientId param captured, got %v", entry.Input["patientId"])
	}
}

func TestMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := methodToAction(method); got != want {
			t.Errorf("methodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := map[string]string{
		"/chats/123/messages":        "chats",
		"/escalations":               "escalations",
		"/api/v1/chats/123/messages": "chats",
		"/api/v1/escalations":        "escalations",
		"/api/v2/documents/abc":      "documents",
		"/api/v1":                    "unknown",
		"/":                          "unknown",
	}
	for path, want := range tests {
		if got := resourceFromPath(path); got != want {
			t.Errorf("resourceFromPath(%s) = %s, want %s", path, got, want)
		}
	}
}
