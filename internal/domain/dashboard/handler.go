package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/coding"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/security"
)

type Handler struct {
	oracle   *oracle.Service
	security *security.Service
	coding   *coding.Service
}

func NewHandler(o *oracle.Service, s *security.Service, c *coding.Service) *Handler {
	return &Handler{oracle: o, security: s, coding: c}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patient/:id/dashboard-state", h.GetDashboardState)
}

// GetDashboardState projects the patient's three machine snapshots into one
// view. Machines that do not exist yet read as IDLE, so a dashboard can
// always render.
func (h *Handler) GetDashboardState(c echo.Context) error {
	patientID := c.Param("id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient id is required")
	}

	oracleSnap, ok := h.oracle.GetSnapshot(patientID)
	if !ok {
		oracleSnap = oracle.Snapshot{Value: oracle.StateIdle}
	}
	securitySnap, ok := h.security.GetSnapshot(patientID)
	if !ok {
		securitySnap = security.Snapshot{Value: security.StateIdle}
	}
	codingSnap, ok := h.coding.GetObserverSnapshot(patientID)
	if !ok {
		codingSnap = coding.Snapshot{Value: coding.StateIdle}
	}

	return c.JSON(http.StatusOK, Project(patientID, oracleSnap, securitySnap, codingSnap))
}
