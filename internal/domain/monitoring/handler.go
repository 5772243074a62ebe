package monitoring

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fivcare/clinic/internal/domain/treatment"
	"github.com/fivcare/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	physician := auth.RequireRole("physician", "director")

	api.PUT("/treatments/:id/monitoring-plan", h.GeneratePlan, physician)
	api.GET("/treatments/:id/monitoring-plan", h.GetPlan, physician)
	api.PATCH("/monitoring-plan/:planId/status", h.MarkVisit, physician)
}

type generateRequest struct {
	Rows []PlanRow `json:"rows"`
}

// GeneratePlan handles PUT /treatments/:id/monitoring-plan.
func (h *Handler) GeneratePlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	plans, err := h.svc.GeneratePlan(c.Request().Context(), id, req.Rows)
	if err != nil {
		switch {
		case errors.Is(err, treatment.ErrTreatmentNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, treatment.ErrTreatmentNotActive):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrMissingStimulationStart), errors.Is(err, ErrInvalidPlanRow):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, plans)
}

// GetPlan handles GET /treatments/:id/monitoring-plan.
func (h *Handler) GetPlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid treatment id")
	}
	plans, err := h.svc.Plan(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, treatment.ErrTreatmentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, plans)
}

type markVisitRequest struct {
	Status PlanStatus `json:"status"`
}

// MarkVisit handles PATCH /monitoring-plan/:planId/status.
func (h *Handler) MarkVisit(c echo.Context) error {
	planID, err := uuid.Parse(c.Param("planId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}
	var req markVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.svc.MarkVisit(c.Request().Context(), planID, req.Status); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
