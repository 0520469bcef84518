package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/service/auth"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, MessageInvalidToken},
		{"service not found", service.ErrTaskNotFound, http.StatusNotFound, MessageTaskNotFound},
		{"store not found", fmt.Errorf("lookup: %w", store.ErrTaskNotFound), http.StatusNotFound, MessageTaskNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict, MessageUnexpected},
		{"validation", domain.NewValidationError("size", "size is wrong"), http.StatusBadRequest, "size is wrong"},
		{
			"shortfall",
			&credits.InsufficientCreditsError{Required: 5, Available: 1},
			http.StatusBadRequest,
			MessageInsufficientCredits,
		},
		{"cancel refused", service.ErrCancelRefused, http.StatusBadRequest, MessageCannotCancel},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest, "Request body is required"},
		{"unknown", errors.New("pq: relation does not exist"), http.StatusInternalServerError, MessageUnexpected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	v := validator.New()

	err := v.Struct(CancelTaskRequest{TaskID: "abc"})
	assert.Equal(t, "Invalid TaskID: must be a task id", SanitizeValidationError(err))

	err = v.Struct(SubmitTaskRequest{})
	assert.Equal(t, "Invalid Prompt: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
