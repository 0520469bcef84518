// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyPrompt is returned when a generation request has no prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not recognized.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the task state machine.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrInvalidDataURI is returned when an inline image payload cannot be decoded.
	ErrInvalidDataURI = errors.New("invalid image data URI")
)

// ValidationError reports which request field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
