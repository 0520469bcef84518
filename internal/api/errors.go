package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/service/auth"
	"github.com/phrazzld/nailart-api/internal/store"
)

// Client-facing messages.
const (
	MessageUnexpected          = "An unexpected error occurred"
	MessageInsufficientCredits = "Insufficient credits"
	MessageCannotCancel        = "Task cannot be cancelled"
	MessageTaskNotFound        = "Task not found"
	MessageInvalidToken        = "Invalid token"
	MessageInvalidRequest      = "Invalid request format"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidSubject),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors. A shortfall and a refused cancel are reported as 400
	// with extra fields for the client.
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, credits.ErrInsufficientCredits),
		errors.Is(err, service.ErrCancelRefused),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return MessageUnexpected
	}

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidSubject),
		errors.Is(err, auth.ErrMissingToken):
		return MessageInvalidToken

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return MessageTaskNotFound

	case errors.Is(err, credits.ErrInsufficientCredits):
		return MessageInsufficientCredits

	case errors.Is(err, service.ErrCancelRefused):
		return MessageCannotCancel

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Validation error"

	default:
		return MessageUnexpected
	}
}

// HandleAPIError writes the response for err. Credit shortfalls and refused
// cancels carry extra fields; everything else gets the standard error body.
// defaultMsg replaces the generic message for unclassified errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	var shortfall *credits.InsufficientCreditsError
	if errors.As(err, &shortfall) {
		shared.RespondWithJSON(w, r, http.StatusBadRequest, InsufficientCreditsResponse{
			Error:     MessageInsufficientCredits,
			Required:  shortfall.Required,
			Available: shortfall.Available,
			Message: fmt.Sprintf("This request needs %d credits but only %d are available.",
				shortfall.Required, shortfall.Available),
			TraceID: shared.GetTraceID(r.Context()),
		})
		return
	}

	var refused *service.CancelRefusedError
	if errors.As(err, &refused) {
		shared.RespondWithJSON(w, r, http.StatusBadRequest, CancelRefusedResponse{
			Error:         MessageCannotCancel,
			CurrentStatus: refused.Current,
			TraceID:       shared.GetTraceID(r.Context()),
		})
		return
	}

	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if message == MessageUnexpected && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError turns validator output into a short message naming
// the first failing field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Validation error"
	}
	first := fieldErrs[0]
	return fmt.Sprintf("Invalid %s: %s", first.Field(), getValidationTagMessage(first.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "must be a task id"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
