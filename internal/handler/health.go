package handler

import (
	"net/http"

	"github.com/capitalize-ai/multichat/internal/connection"
)

// StateSource reports the channel state.
type StateSource interface {
	State() connection.ReadyState
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	source StateSource
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(source StateSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. The panel is ready once its channel is open.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	state := h.source.State()
	if state != connection.StateOpen {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "channel " + state.String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
