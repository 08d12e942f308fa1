package security

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/security/:patientId/state", h.GetState)
}

// GetState returns the guard's current snapshot. Mutations go through the
// event gateway, never through this handler.
func (h *Handler) GetState(c echo.Context) error {
	patientID := c.Param("patientId")
	snap, ok := h.svc.GetSnapshot(patientID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no security guard for patient %s", patientID))
	}
	return c.JSON(http.StatusOK, snap)
}
