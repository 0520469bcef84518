package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/nailart-api/internal/domain"
)

var (
	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrStreamEnded is returned by a push source whose stream closed before
	// the task reached a terminal status.
	ErrStreamEnded = errors.New("status stream ended before the task finished")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	TraceID    string

	// Set on credit shortfalls.
	Required  int
	Available int

	// Set when a cancel was refused.
	CurrentStatus domain.TaskStatus
}

func (e *APIError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("api error %d: %s (trace %s)", e.StatusCode, e.Message, e.TraceID)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps auth and lookup failures onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// InsufficientCredits reports whether the server refused a submission for
// lack of credits.
func (e *APIError) InsufficientCredits() bool {
	return e.Required > 0
}
