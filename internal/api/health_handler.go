package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/carouselmaker/internal/api/shared"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// HealthCheck names a dependency probed by the readiness endpoint.
type HealthCheck struct {
	Name string
	Ping PingFunc
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. Each check runs under
// timeout when the readiness endpoint is hit.
func NewHealthHandler(timeout time.Duration, checks ...HealthCheck) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{checks: checks, timeout: timeout}
}

// Health handles GET /health. It never touches dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "ok"})
}

// Readiness handles GET /readiness and answers 503 when any check fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			logger.FromContext(r.Context()).Warn("readiness check failed",
				"check", c.Name,
				"error", err)
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	shared.RespondWithJSON(w, r, status, resp)
}
