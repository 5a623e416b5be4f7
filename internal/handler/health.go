package handler

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds all dependency checks of one /readyz call.
const readinessTimeout = 5 * time.Second

// HealthChecker is a dependency that can be pinged for readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	checkers []HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are skipped,
// so optional dependencies can be passed unconditionally.
func NewHealthHandler(checkers ...HealthChecker) *HealthHandler {
	h := &HealthHandler{}
	for _, c := range checkers {
		if c != nil {
			h.checkers = append(h.checkers, c)
		}
	}
	return h
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness endpoint.
// No dependency checks - this backs Kubernetes liveness checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz checks all dependencies and returns 200 only if all are healthy.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true

	for _, c := range h.checkers {
		if err := c.Ping(ctx); err != nil {
			checks[c.Name()] = "error: " + err.Error()
			healthy = false
			continue
		}
		checks[c.Name()] = "ok"
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{Status: status, Checks: checks})
}
