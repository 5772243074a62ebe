package sweep

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fivcare/clinic/internal/platform/auth"
)

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(sweeper *Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sweep/run", h.Run, auth.RequireRole("director"))
}

// Run handles POST /sweep/run: an unguarded manual pass, useful after fixing
// data or when the scheduled run was missed.
func (h *Handler) Run(c echo.Context) error {
	res, err := h.sweeper.Run(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
