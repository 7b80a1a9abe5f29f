package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nebulatel/handoff/internal/domain"
	"github.com/nebulatel/handoff/internal/store"
)

// HistoryHandler serves archived sessions over REST for the supervisor console.
type HistoryHandler struct {
	repo store.Repository
}

// NewHistoryHandler creates a history handler backed by the given repository.
func NewHistoryHandler(repo store.Repository) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// RegisterRoutes mounts the history endpoints on the router.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/history", h.List)
		r.Get("/history/{sessionID}", h.Get)
	})
}

// List returns summaries of all archived sessions, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	archives, err := h.repo.ListArchives(r.Context())
	if err != nil {
		slog.Error("Failed to list archived sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if archives == nil {
		archives = []domain.Archive{}
	}
	JSON(w, http.StatusOK, archives)
}

// Get returns one archived session with its full message log.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	archive, err := h.repo.GetArchive(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load archived session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if archive == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, archive)
}
