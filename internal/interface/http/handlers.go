package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/query"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	applog "github.com/okiru-neo/okiru-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe. It never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// handleReady is the readiness probe. It pings the store and Redis.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStreak returns the current and best streak of a group.
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewGroupID(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_group_id", "Group id is required")
		return
	}

	dto, err := s.deps.Streak.Handle(r.Context(), query.GetStreakQuery{GroupID: id})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrServiceUnavailable), shared.IsPersistence(err):
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		applog.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}
