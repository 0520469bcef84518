package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
)

// TaskStore defines persistence for generation tasks.
//
// Every status-changing method is a compare-and-swap on the row's current
// status: it succeeds only when the task is still in the expected prior
// status and otherwise returns ErrStatusConflict without writing anything.
// Implementations must make each such method a single atomic operation.
type TaskStore interface {
	// Create inserts a new pending task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by ID regardless of owner.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByOwner returns the owner's most recent tasks, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error)

	// Claim moves a specific task from pending to processing and sets started_at.
	Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ClaimNext claims the pending task with the lowest priority value,
	// oldest first. Returns ErrTaskNotFound when nothing is pending.
	ClaimNext(ctx context.Context) (*domain.Task, error)

	// Complete moves a processing task to completed with its result.
	Complete(ctx context.Context, id uuid.UUID, result *domain.Result) error

	// Fail moves a task from the expected status to failed with a message.
	Fail(ctx context.Context, id uuid.UUID, expected domain.TaskStatus, message string) error

	// Cancel moves the owner's pending or processing task to cancelled.
	// On conflict the returned task carries the status that blocked it.
	Cancel(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)

	// AttachStoredImages replaces the result of a completed task whose upload
	// is still pending. It is the only write allowed after completion and
	// returns ErrStatusConflict once it has already been applied.
	AttachStoredImages(ctx context.Context, id uuid.UUID, result *domain.Result) error

	// FailStale fails every task left in status longer than the cutoff and
	// returns how many rows changed. Pending age is measured from created_at,
	// processing age from started_at.
	FailStale(ctx context.Context, status domain.TaskStatus, cutoff time.Time, message string) (int, error)
}
