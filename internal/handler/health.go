package handler

import (
	"net/http"
)

// ReadinessChecker reports whether the durable store backend is reachable.
type ReadinessChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	backend ReadinessChecker
}

// NewHealthHandler creates a new health handler. backend may be nil when
// the process runs on the in-memory store.
func NewHealthHandler(backend ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		backend: backend,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.backend != nil && !h.backend.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
