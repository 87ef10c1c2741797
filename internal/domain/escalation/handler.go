package escalation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/pkg/pagination"
)

type Handler struct {
	svc      *Service
	identity *identity.Service
}

func NewHandler(svc *Service, identitySvc *identity.Service) *Handler {
	return &Handler{svc: svc, identity: identitySvc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/escalations", h.List, auth.RequireRole(auth.RolePhysician))
	api.GET("/escalations/:id", h.Get)
	api.GET("/escalations/patient/:patientID", h.ListByPatient)
	api.POST("/escalations/:id/acknowledge", h.Acknowledge, auth.RequireRole(auth.RolePhysician))
	api.POST("/escalations/:id/resolve", h.Resolve, auth.RequireRole(auth.RolePhysician))
}

func (h *Handler) actor(c echo.Context) (*identity.User, error) {
	sub := auth.SubjectFromContext(c.Request().Context())
	if sub == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	u, err := h.identity.GetUserByExternalID(c.Request().Context(), sub)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return u, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEscalationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoAdminAvailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"No administrators available to handle escalation. Please contact support.")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// List returns the caller's escalation queue. Physicians see their own
// assignments; admins see the pending queue across the deployment.
func (h *Handler) List(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	if actor.Role == auth.RoleAdmin {
		items, total, err := h.svc.ListPending(c.Request().Context(),
			Severity(c.QueryParam("severity")), pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	items, total, err := h.svc.ListByPhysician(c.Request().Context(),
		actor.ID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !h.canView(c, actor, e) {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	if actor.Role == auth.RolePatient {
		patient, err := h.identity.GetPatient(c.Request().Context(), patientID)
		if err != nil || patient.UserID != actor.ID {
			return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	e, err := h.svc.Acknowledge(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

type resolveRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Resolve(c.Request().Context(), actor, id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) canView(c echo.Context, actor *identity.User, e *Escalation) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePhysician:
		return e.PhysicianID == actor.ID
	case auth.RolePatient:
		patient, err := h.identity.GetPatient(c.Request().Context(), e.PatientID)
		return err == nil && patient.UserID == actor.ID
	}
	return false
}
