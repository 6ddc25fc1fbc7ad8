package api

import (
	"context"
	"net/http"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	readyCheck func(ctx context.Context) error
	logger     log.Logger
}

// NewHealthHandler creates a health handler. readyCheck backs the readiness
// probe; nil means the server is ready once it listens.
func NewHealthHandler(readyCheck func(ctx context.Context) error, logger log.Logger) *HealthHandler {
	return &HealthHandler{readyCheck: readyCheck, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness returns 200 OK if the agent's dependencies are reachable.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.readyCheck != nil {
		if err := h.readyCheck(r.Context()); err != nil {
			h.logger.Error("readiness check failed", "error", err)
			writeError(w, h.logger, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ready"})
}
