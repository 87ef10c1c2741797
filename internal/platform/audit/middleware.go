package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
)

// Sink receives completed audit entries. The concrete Recorder implements it;
// tests provide a capture implementation.
type Sink interface {
	Record(ctx context.Context, entry *Entry)
}

// maxAuditBody caps how much of a request body is parsed for audit input.
const maxAuditBody = 1 << 20 // 1 MB

// Middleware returns Echo middleware that records an audit entry for every
// authenticated API request. Request bodies are parsed as JSON and sanitized
// by the sink's policy before anything is persisted, so raw payloads never
// reach the log. Infrastructure endpoints (health, metrics) and requests
// without an authenticated subject are skipped. Unlike Recorder.Audited,
// which only records completed operations, the HTTP trail also records
// failed requests so that denied access attempts remain visible.
func Middleware(sink Sink) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.IsPublicPath(c.Path()) {
				return next(c)
			}

			req := c.Request()
			input := captureInput(c)

			err := next(c)

			subject := auth.SubjectFromContext(req.Context())
			if subject == "" {
				return err
			}

			entry := &Entry{
				UserID:       subject,
				UserRole:     auth.RoleFromContext(req.Context()),
				Action:       methodToAction(req.Method),
				ResourceType: resourceFromPath(req.URL.Path),
				ResourceID:   resourceIDFromPath(c),
				Input:        input,
				Success:      err == nil && c.Response().Status < http.StatusBadRequest,
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if err != nil {
				entry.Error = err.Error()
			}

			sink.Record(req.Context(), entry)

			return err
		}
	}
}

// captureInput merges query parameters and the JSON request body into one
// field map for sanitization. The body is restored so the handler can still
// read it.
func captureInput(c echo.Context) map[string]interface{} {
	input := make(map[string]interface{})

	for key, values := range c.QueryParams() {
		if len(values) > 0 {
			input[key] = values[0]
		}
	}

	req := c.Request()
	if req.Body != nil && req.Body != http.NoBody &&
		strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxAuditBody))
		req.Body = io.NopCloser(bytes.NewReader(body))
		if err == nil && len(body) > 0 {
			var fields map[string]interface{}
			if json.Unmarshal(body, &fields) == nil {
				for k, v := range fields {
					input[k] = v
				}
			}
		}
	}

	if len(input) == 0 {
		return nil
	}
	return input
}

// methodToAction maps HTTP methods to audit action names.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath takes the first path segment after the API prefix as the
// resource type, e.g. /api/v1/chats/123/messages -> chats.
func resourceFromPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if rest, ok := strings.CutPrefix(path, "api/"); ok {
		path = rest
		// Skip a version segment such as v1 or v2.
		if len(path) > 1 && path[0] == 'v' && path[1] >= '0' && path[1] <= '9' {
			if i := strings.IndexByte(path, '/'); i >= 0 {
				path = path[i+1:]
			} else {
				path = ""
			}
		}
	}
	segments := strings.Split(path, "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// resourceIDFromPath returns the :id path parameter when it parses as a UUID.
func resourceIDFromPath(c echo.Context) *uuid.UUID {
	for _, name := range c.ParamNames() {
		if name != "id" {
			continue
		}
		if id, err := uuid.Parse(c.Param(name)); err == nil {
			return &id
		}
	}
	return nil
}
