package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/tasks/history", nil)

	RespondWithJSON(w, r, http.StatusOK, map[string]any{"success": true})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestRespondWithError_IncludesTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/tasks/cancel", nil)
	r = r.WithContext(SetTraceID(r.Context(), "trace-1"))

	RespondWithError(w, r, http.StatusNotFound, "Task not found")

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", body.Error)
	assert.Equal(t, "trace-1", body.TraceID)
}

func TestRespondWithErrorAndLog_HidesInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/tasks/submit", nil)

	err := errors.New("dial tcp: postgres://app:hunter2@db:5432 refused")
	RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "An unexpected error occurred", err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "hunter2"))
	assert.Contains(t, w.Body.String(), "An unexpected error occurred")
}
