package treatment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fivcare/clinic/internal/platform/auth"
	"github.com/fivcare/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	physician := auth.RequireRole("physician", "director")

	api.POST("/treatments", h.Create, physician)
	api.GET("/treatments", h.List, physician)
	api.GET("/treatments/:id", h.Get, physician)
	api.PATCH("/treatments/:id", h.Update, physician)
	api.POST("/treatments/:id/close", h.Close, physician)
	api.POST("/treatments/:id/complete", h.Complete, physician)
	api.POST("/treatments/:id/reassign", h.ReassignDoctor, auth.RequireRole("director"))
}

type createRequest struct {
	MedicalHistoryID uuid.UUID  `json:"medical_history_id"`
	DoctorID         *uuid.UUID `json:"doctor_id"`
	StartDate        *string    `json:"start_date"`
	Notes            *string    `json:"notes"`
}

// Create handles POST /treatments.
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	t := &Treatment{
		MedicalHistoryID: req.MedicalHistoryID,
		DoctorID:         req.DoctorID,
		Notes:            req.Notes,
	}
	if req.StartDate != nil {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
		t.StartDate = &d
	}

	if err := h.svc.Create(c.Request().Context(), t, actor(c)); err != nil {
		if errors.Is(err, ErrMissingMedicalHistory) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

// Get handles GET /treatments/:id.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// List handles GET /treatments.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// Update handles PATCH /treatments/:id.
func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	t, err := h.svc.Update(c.Request().Context(), id, patch, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

type closeRequest struct {
	Reason string `json:"reason"`
}

// Close handles POST /treatments/:id/close.
func (h *Handler) Close(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	var req closeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	t, err := h.svc.Close(c.Request().Context(), id, req.Reason, actor(c))
	if err != nil {
		if errors.Is(err, ErrInvalidClosureReason) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// Complete handles POST /treatments/:id/complete.
func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	t, err := h.svc.Complete(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

type reassignRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
}

// ReassignDoctor handles POST /treatments/:id/reassign.
func (h *Handler) ReassignDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	var req reassignRequest
	if err := c.Bind(&req); err != nil || req.DoctorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	t, err := h.svc.ReassignDoctor(c.Request().Context(), id, req.DoctorID, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func actor(c echo.Context) *uuid.UUID {
	raw := auth.UserIDFromContext(c.Request().Context())
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrTreatmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTreatmentNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidPatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
