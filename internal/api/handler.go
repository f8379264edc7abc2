// Package api provides the JSON helpers and operational endpoints of the
// voice server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultTranscriptLimit = 20
	maxTranscriptLimit     = 200
	healthCheckTimeout     = 5 * time.Second
)

// Handler serves health and transcript history endpoints.
type Handler struct {
	sessions store.SessionStore
	history  store.HistoryStore
}

// NewHandler creates a new Handler. history may be nil when archiving is disabled.
func NewHandler(sessions store.SessionStore, history store.HistoryStore) *Handler {
	return &Handler{
		sessions: sessions,
		history:  history,
	}
}

// RegisterRoutes registers the operational routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/transcripts", h.ListTranscripts)
}

// Health returns the health status of the server and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]any{
		"api":      "ok",
		"sessions": h.sessions.Len(),
		"history":  "disabled",
	}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.history != nil {
		if err := h.history.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["history"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["history"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}

// ListTranscripts returns the most recent archived transcripts.
func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	if h.history == nil {
		JSON(w, http.StatusOK, map[string]any{"transcripts": []domain.Transcript{}})
		return
	}

	items, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list transcripts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if items == nil {
		items = []domain.Transcript{}
	}
	JSON(w, http.StatusOK, map[string]any{"transcripts": items})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
