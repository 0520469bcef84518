package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
)

// requireUserID returns the authenticated owner or writes a 401.
func requireUserID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		logger.FromContextOrDefault(r.Context(), log).Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

// parseTaskID parses raw as a task id, reporting field on failure.
func parseTaskID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(field, "Task ID is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.NewValidationError(field, "Task ID has invalid format")
	}
	return id, nil
}

// handleUserIDAndTaskID extracts the owner and a task id from the path
// parameter or, when param is empty, the taskId query parameter. It writes
// the error response when either is missing.
func handleUserIDAndTaskID(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := requireUserID(w, r, log)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	taskID, ok := requireTaskID(w, r, param, log)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return userID, taskID, true
}

// requireTaskID reads the task id from the path parameter, or from the
// taskId query parameter when param is empty, and writes a 400 on failure.
func requireTaskID(w http.ResponseWriter, r *http.Request, param string, log *slog.Logger) (uuid.UUID, bool) {
	raw, field := r.URL.Query().Get("taskId"), "taskId"
	if param != "" {
		raw, field = chi.URLParam(r, param), param
	}
	taskID, err := parseTaskID(raw, field)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), log).Debug("invalid task id",
			slog.String("param_name", field),
			slog.String("value", raw))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return taskID, true
}
