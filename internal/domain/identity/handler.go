package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/users/sync", h.SyncUser, auth.RequireRole(auth.RoleAdmin))
	api.GET("/users/me", h.Me)
	api.GET("/users", h.ListUsers, auth.RequireRole(auth.RoleAdmin))

	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RolePhysician))
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.PUT("/patients/:id/consent", h.UpdateConsent)
	api.PUT("/patients/:id/physician", h.AssignPhysician, auth.RequireRole(auth.RoleAdmin))

	api.POST("/physicians", h.CreatePhysician, auth.RequireRole(auth.RoleAdmin))
	api.GET("/physicians", h.ListPhysicians, auth.RequireRole(auth.RolePhysician))
	api.GET("/physicians/:id", h.GetPhysician)
	api.GET("/physicians/:id/patients", h.ListPhysicianPatients, auth.RequireRole(auth.RolePhysician))
}

// actor resolves the authenticated caller to their local user record.
func (h *Handler) actor(c echo.Context) (*User, error) {
	sub := auth.SubjectFromContext(c.Request().Context())
	if sub == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	u, err := h.svc.GetUserByExternalID(c.Request().Context(), sub)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return u, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrPhysicianNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// -- User Handlers --

type syncUserRequest struct {
	ExternalID string  `json:"external_id"`
	Email      string  `json:"email"`
	Name       *string `json:"name"`
	Role       string  `json:"role"`
}

func (h *Handler) SyncUser(c echo.Context) error {
	var req syncUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.SyncUser(c.Request().Context(), req.ExternalID, req.Email, req.Name, req.Role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.actor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Patients can only register their own profile.
	if actor.Role == auth.RolePatient {
		p.UserID = actor.ID
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if actor.Role == auth.RolePatient && p.UserID != actor.ID {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), actor, &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type consentRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateConsent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	var req consentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateConsent(c.Request().Context(), actor, id, req.Status); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type assignPhysicianRequest struct {
	PhysicianUserID uuid.UUID `json:"physician_user_id"`
}

func (h *Handler) AssignPhysician(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignPhysicianRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PhysicianUserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "physician_user_id is required")
	}
	if err := h.svc.AssignPhysician(c.Request().Context(), id, req.PhysicianUserID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Physician Handlers --

func (h *Handler) CreatePhysician(c echo.Context) error {
	var p Physician
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePhysician(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPhysician(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPhysician(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPhysicians(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPhysicians(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPhysicianPatients(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	// Physicians can only list their own panel; admins any.
	if actor.Role == auth.RolePhysician && actor.ID != id {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientsByPhysician(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
