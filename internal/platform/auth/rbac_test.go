package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRole(t *testing.T, mw echo.MiddlewareFunc, role string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/escalations", nil)
	if role != "" {
		ctx := context.WithValue(req.Context(), RoleKey, role)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRequireRole_Match(t *testing.T) {
	mw := RequireRole(RolePhysician)
	rec := requestWithRole(t, mw, RolePhysician)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for matching role, got %d", rec.Code)
	}
}

func TestRequireRole_AdminOverride(t *testing.T) {
	mw := RequireRole(RolePhysician)
	rec := requestWithRole(t, mw, RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Errorf("expected admin to pass physician check, got %d", rec.Code)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	mw := RequireRole(RolePhysician, RoleAdmin)
	rec := requestWithRole(t, mw, RolePatient)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient on physician route, got %d", rec.Code)
	}
}

func TestRequireRole_NoRole(t *testing.T) {
	mw := RequireRole(RolePatient)
	rec := requestWithRole(t, mw, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 when no role in context, got %d", rec.Code)
	}
}

func TestRequireRole_MultipleRoles(t *testing.T) {
	mw := RequireRole(RolePatient, RolePhysician)
	if rec := requestWithRole(t, mw, RolePatient); rec.Code != http.StatusOK {
		t.Errorf("expected patient to pass, got %d", rec.Code)
	}
	if rec := requestWithRole(t, mw, RolePhysician); rec.Code != http.StatusOK {
		t.Errorf("expected physician to pass, got %d", rec.Code)
	}
}
