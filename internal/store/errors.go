package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrTaskNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStatusConflict is returned when a conditional status write finds the
	// row in a status other than the expected one. Another writer got there first.
	ErrStatusConflict = errors.New("task status changed concurrently")

	// ErrAlreadyApplied is returned when a one-time mutation has already been
	// recorded, for example a credit charge for a task.
	ErrAlreadyApplied = errors.New("mutation already applied")

	// ErrInsufficientBalance is returned when a charge exceeds the unspent credits.
	ErrInsufficientBalance = errors.New("insufficient credit balance")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrCreditAccountNotFound indicates the owner has no credit account yet.
	ErrCreditAccountNotFound = fmt.Errorf("%w: credit account", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
