package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nebulatel/handoff/internal/store"
)

// HealthHandler reports readiness of the service and its database.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a health handler backed by the given repository.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterRoutes mounts the readiness endpoint on the router. Liveness is
// served separately by the heartbeat middleware.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/ready", h.Ready)
}

// Ready checks that the database is reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{
			"database": "ok",
		},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}
