// Package gateway is the single inbound entry point for machine events. It
// maps (machineId, eventType, payload) onto the owning service and returns
// the snapshot after the transition.
package gateway

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/coding"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/security"
)

// EventRequest is the intention envelope.
type EventRequest struct {
	MachineID string       `json:"machineId"`
	EventType string       `json:"eventType"`
	Payload   EventPayload `json:"payload"`
}

// EventPayload carries every field any routed event may need; each route
// validates the keys it requires.
type EventPayload struct {
	PatientID string `json:"patientId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Author    string `json:"author,omitempty"`
}

type Handler struct {
	oracle   *oracle.Service
	security *security.Service
	coding   *coding.Service
	logger   zerolog.Logger
}

func NewHandler(o *oracle.Service, s *security.Service, c *coding.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		oracle:   o,
		security: s,
		coding:   c,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ghost/event", h.SubmitIntention)
}

// SubmitIntention routes one event through the closed (machineId, eventType)
// table. Unknown pairs and missing correlation keys are synchronous 400s,
// never silent drops; an event that is illegal in the machine's current
// state is a no-op that still returns the current snapshot.
func (h *Handler) SubmitIntention(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MachineID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "machineId is required")
	}
	if req.EventType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "eventType is required")
	}

	snap, err := h.dispatch(req)
	if err != nil {
		return err
	}
	h.logger.Debug().
		Str("machine_id", req.MachineID).
		Str("event_type", req.EventType).
		Msg("intention routed")
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) dispatch(req EventRequest) (any, error) {
	switch req.MachineID {
	case "security":
		patientID, err := requireKey(req, "patientId", req.Payload.PatientID)
		if err != nil {
			return nil, err
		}
		switch req.EventType {
		case "OVERRIDE_REQUEST":
			snap, err := h.security.Override(patientID, req.Payload.Reason, req.Payload.Author)
			return snap, badRequest(err)
		case "VALIDATE_PRESCRIPTION":
			snap, err := h.security.Validate(patientID)
			return snap, badRequest(err)
		case "RESET":
			snap, err := h.security.Reset(patientID)
			return snap, badRequest(err)
		}
	case "oracle":
		if req.EventType == "INITIALIZE" {
			patientID, err := requireKey(req, "patientId", req.Payload.PatientID)
			if err != nil {
				return nil, err
			}
			snap, err := h.oracle.Start(patientID)
			return snap, badRequest(err)
		}
	case "strategist":
		if req.EventType == "INPUT_UPDATED" {
			sessionID, err := requireKey(req, "sessionId", req.Payload.SessionID)
			if err != nil {
				return nil, err
			}
			snap, err := h.coding.UpdateSessionInput(sessionID, req.Payload.Text)
			return snap, badRequest(err)
		}
	}
	return nil, echo.NewHTTPError(http.StatusBadRequest,
		fmt.Sprintf("unhandled machine/event: %s/%s", req.MachineID, req.EventType))
}

func requireKey(req EventRequest, name, value string) (string, error) {
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s is required for %s/%s", name, req.MachineID, req.EventType))
	}
	return value, nil
}

func badRequest(err error) error {
	if err == nil {
		return nil
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
