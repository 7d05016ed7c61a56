package handler

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker reports whether the server's dependencies are usable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	ready ReadinessChecker
	now   func() time.Time
}

func NewHealthHandler(ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{ready: ready, now: time.Now}
}

// HandleHealth is the liveness probe. It never touches the database.
//
// RESPONSE 200: {"status": "ok", "timestamp": "2024-05-01T12:00:00Z"}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HandleReady is the readiness probe: 200 when every dependency answers,
// 503 otherwise.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.ready.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
