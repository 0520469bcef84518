package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to status codes.
var (
	// ErrTaskNotFound indicates the task does not exist or belongs to another
	// owner. The two cases are indistinguishable to callers.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCancelRefused is the sentinel behind CancelRefusedError.
	ErrCancelRefused = errors.New("task cannot be cancelled")
)

// CancelRefusedError reports a cancel that lost to another writer or hit a
// task that had already finished.
type CancelRefusedError struct {
	Current domain.TaskStatus
}

func (e *CancelRefusedError) Error() string {
	return fmt.Sprintf("task cannot be cancelled: task is %s", e.Current)
}

func (e *CancelRefusedError) Unwrap() error {
	return ErrCancelRefused
}

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "cancel")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTaskNotFound) || errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
