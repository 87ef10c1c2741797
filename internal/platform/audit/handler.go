package audit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/pkg/pagination"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// Register mounts audit routes. Access is admin-only.
func (h *Handler) Register(g *echo.Group) {
	logs := g.Group("/audit-logs", auth.RequireRole(auth.RoleAdmin))
	logs.GET("", h.list)
}

func (h *Handler) list(c echo.Context) error {
	p := pagination.FromContext(c)

	f := Filter{
		UserID:       c.QueryParam("userId"),
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resourceType"),
		Limit:        p.Limit,
		Offset:       p.Offset,
	}

	if s := c.QueryParam("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since timestamp")
		}
		f.Since = &t
	}
	if s := c.QueryParam("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid until timestamp")
		}
		f.Until = &t
	}

	entries, err := h.recorder.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}
	if entries == nil {
		entries = []Entry{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   entries,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
