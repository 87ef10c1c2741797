package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	e := echo.New()

	public := []string{"/health", "/health/db", "/metrics"}
	for _, path := range public {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(path)
		if !AuthSkipper(c) {
			t.Errorf("expected %s to skip auth", path)
		}
	}

	private := []string{"/chats", "/escalations", "/patients", "/"}
	for _, path := range private {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(path)
		if AuthSkipper(c) {
			t.Errorf("expected %s to require auth", path)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/chats") {
		t.Error("expected /chats to be private")
	}
}
