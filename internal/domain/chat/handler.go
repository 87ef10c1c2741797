package chat

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulse-health/pulse-api/internal/domain/escalation"
	"github.com/pulse-health/pulse-api/internal/domain/identity"
	"github.com/pulse-health/pulse-api/internal/platform/auth"
	"github.com/pulse-health/pulse-api/pkg/pagination"
)

type Handler struct {
	svc      *Service
	triage   *Triage
	identity *identity.Service
}

func NewHandler(svc *Service, triage *Triage, identitySvc *identity.Service) *Handler {
	return &Handler{svc: svc, triage: triage, identity: identitySvc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/chats", h.GetOrCreate, auth.RequireRole(auth.RolePatient))
	api.GET("/chats", h.ListMine, auth.RequireRole(auth.RolePatient))
	api.GET("/chats/escalated", h.ListEscalated, auth.RequireRole(auth.RolePhysician))
	api.GET("/chats/:id", h.Get)
	api.GET("/chats/:id/messages", h.Messages)
	api.POST("/chats/:id/messages", h.SendMessage, auth.RequireRole(auth.RolePatient))
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

// patientProfile resolves the patient profile behind the acting user.
func (h *Handler) patientProfile(c echo.Context, actor *identity.User) (*identity.Patient, error) {
	p, err := h.identity.GetPatientByUser(c.Request().Context(), actor.ID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no patient profile for user")
	}
	return p, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrChatNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// GetOrCreate returns the caller's active chat, creating one if needed.
func (h *Handler) GetOrCreate(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	patient, err := h.patientProfile(c, actor)
	if err != nil {
		return err
	}
	id, err := h.svc.GetOrCreateActiveChat(c.Request().Context(), patient.ID)
	if err != nil {
		return httpError(err)
	}
	chat, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// ListMine returns the caller's chats, newest first.
func (h *Handler) ListMine(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	patient, err := h.patientProfile(c, actor)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patient.ID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListEscalated returns chats escalated to the calling physician.
func (h *Handler) ListEscalated(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListEscalatedForPhysician(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
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
	chat, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !h.canView(c, actor, chat) {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return c.JSON(http.StatusOK, chat)
}

func (h *Handler) Messages(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	chat, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !h.canView(c, actor, chat) {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	msgs, err := h.svc.Messages(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sendMessageResponse struct {
	Reply string `json:"reply"`
}

// SendMessage runs one triage turn on the caller's chat.
func (h *Handler) SendMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	chat, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !h.ownsChat(c, actor, chat) {
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reply, err := h.triage.SendMessage(c.Request().Context(), id, req.Content)
	if err != nil {
		return triageHTTPError(err)
	}
	return c.JSON(http.StatusOK, sendMessageResponse{Reply: reply})
}

// triageHTTPError maps the zero-admins configuration error to a 503 so
// operators see it immediately; everything else follows the usual mapping.
func triageHTTPError(err error) error {
	if errors.Is(err, escalation.ErrNoAdminAvailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"No administrators available to handle escalation. Please contact support.")
	}
	return httpError(err)
}

func (h *Handler) ownsChat(c echo.Context, actor *identity.User, chat *Chat) bool {
	patient, err := h.identity.GetPatient(c.Request().Context(), chat.PatientID)
	return err == nil && patient.UserID == actor.ID
}

func (h *Handler) canView(c echo.Context, actor *identity.User, chat *Chat) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePhysician:
		return chat.EscalatedTo != nil && *chat.EscalatedTo == actor.ID
	case auth.RolePatient:
		return h.ownsChat(c, actor, chat)
	}
	return false
}
