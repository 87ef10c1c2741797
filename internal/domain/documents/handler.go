package documents

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
	api.POST("/documents/upload-url", h.IssueUploadURL)
	api.POST("/documents", h.Create)
	api.GET("/documents/patient/:patientID", h.ListByPatient)
	api.GET("/documents/:id", h.Get)
	api.GET("/documents/:id/download", h.Download)
	api.PUT("/documents/:id", h.UpdateMetadata)
	api.DELETE("/documents/:id", h.Delete)
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
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, identity.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

type uploadURLRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
}

func (h *Handler) IssueUploadURL(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var req uploadURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ticket, err := h.svc.IssueUploadURL(c.Request().Context(), actor, req.PatientID, req.FileName, req.ContentType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ticket)
}

type createRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	ObjectKey   string    `json:"object_key"`
	Category    string    `json:"category"`
	Description *string   `json:"description"`
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Create(c.Request().Context(), actor, &Document{
		PatientID:   req.PatientID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ObjectKey:   req.ObjectKey,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
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
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), actor, patientID,
		c.QueryParam("category"), pg.Limit, pg.Offset)
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
	d, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type downloadResponse struct {
	URL string `json:"url"`
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	url, err := h.svc.DownloadURL(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, downloadResponse{URL: url})
}

type updateMetadataRequest struct {
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

func (h *Handler) UpdateMetadata(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	var req updateMetadataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateMetadata(c.Request().Context(), actor, id, req.Category, req.Description)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, aerr := h.actor(c)
	if aerr != nil {
		return aerr
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
