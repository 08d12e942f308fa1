package coding

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
	api.GET("/coding/:patientId/state", h.GetObserverState)
	api.POST("/coding/sessions/:sessionId/input", h.UpdateInput)
	api.GET("/coding/sessions/:sessionId", h.GetSession)
	api.DELETE("/coding/sessions/:sessionId", h.DestroySession)
}

// GetObserverState returns the patient assistant's snapshot.
func (h *Handler) GetObserverState(c echo.Context) error {
	patientID := c.Param("patientId")
	snap, ok := h.svc.GetObserverSnapshot(patientID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no coding assistant for patient %s", patientID))
	}
	return c.JSON(http.StatusOK, snap)
}

type updateInputRequest struct {
	Text string `json:"text"`
}

// UpdateInput feeds free text into the session, creating it on first use.
func (h *Handler) UpdateInput(c echo.Context) error {
	var req updateInputRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	snap, err := h.svc.UpdateSessionInput(c.Param("sessionId"), req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

// GetSession returns the session view. Unknown sessions read as empty IDLE.
func (h *Handler) GetSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if !sessionIDPattern.MatchString(sessionID) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"invalid sessionId: must be 1..128 chars of [A-Za-z0-9_-]")
	}
	return c.JSON(http.StatusOK, h.svc.GetSession(sessionID))
}

// DestroySession tears the session down. Idempotent: destroying an unknown
// session still returns 204.
func (h *Handler) DestroySession(c echo.Context) error {
	h.svc.DestroySession(c.Param("sessionId"))
	return c.NoContent(http.StatusNoContent)
}
