package oracle

import (
	"encoding/json"
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
	api.POST("/oracle/:patientId/start", h.Start)
	api.GET("/oracle/:patientId/stream", h.Stream)
	api.GET("/oracle/:patientId/state", h.GetState)
	api.DELETE("/oracle/:patientId", h.Destroy)
}

// Start initializes or restarts the acquisition cycle for a patient and
// returns the snapshot after the synchronous transitions.
func (h *Handler) Start(c echo.Context) error {
	patientID := c.Param("patientId")
	snap, err := h.svc.Start(patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, snap)
}

// Stream holds the connection open and pushes one SSE frame per transition.
// The first frame is always the current snapshot.
func (h *Handler) Stream(c echo.Context) error {
	patientID := c.Param("patientId")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}

	sub := h.svc.Subscribe(patientID)
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				// Machine destroyed; end the stream cleanly.
				return nil
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// GetState returns the current snapshot without side effects.
func (h *Handler) GetState(c echo.Context) error {
	patientID := c.Param("patientId")
	snap, ok := h.svc.GetSnapshot(patientID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no oracle machine for patient %s", patientID))
	}
	return c.JSON(http.StatusOK, snap)
}

// Destroy tears down the patient's machine and its observers.
func (h *Handler) Destroy(c echo.Context) error {
	patientID := c.Param("patientId")
	if !h.svc.Destroy(patientID) {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no oracle machine for patient %s", patientID))
	}
	return c.NoContent(http.StatusNoContent)
}
