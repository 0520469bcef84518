package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a generation task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskKind identifies what a task produces.
type TaskKind string

// TaskKindImageGeneration is the only task kind currently accepted.
const TaskKindImageGeneration TaskKind = "image_generation"

// MessageCancelledByUser is written to a task's error message on cancellation.
const MessageCancelledByUser = "Task cancelled by user"

// StaleTaskMessage is the error message for a task reaped after sitting in
// status for longer than limit, e.g. "Task timed out after 10 minutes in
// pending state".
func StaleTaskMessage(status TaskStatus, limit time.Duration) string {
	if limit < time.Minute || limit%time.Minute != 0 {
		return fmt.Sprintf("Task timed out after %s in %s state", limit, status)
	}
	return fmt.Sprintf("Task timed out after %d minutes in %s state", int(limit/time.Minute), status)
}

// allowedTransitions lists, for each status, the statuses it may move to.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Progress returns the coarse completion percentage reported to clients.
func (s TaskStatus) Progress() int {
	switch s {
	case TaskStatusProcessing:
		return 50
	case TaskStatusCompleted:
		return 100
	default:
		return 0
	}
}

// Message returns the human-readable status line shown to clients.
func (s TaskStatus) Message() string {
	switch s {
	case TaskStatusPending:
		return "Task is waiting to be processed"
	case TaskStatusProcessing:
		return "AI is generating your image..."
	case TaskStatusCompleted:
		return "Task completed successfully"
	case TaskStatusFailed:
		return "Task processing failed"
	case TaskStatusCancelled:
		return "Task was cancelled"
	default:
		return "Unknown status"
	}
}

// Task is a single asynchronous image generation request and its outcome.
type Task struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         uuid.UUID       `json:"user_id"`
	Kind            TaskKind        `json:"task_type"`
	Status          TaskStatus      `json:"status"`
	Priority        int             `json:"priority"`
	Input           GenerationInput `json:"input_data"`
	Result          *Result         `json:"result_data,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	CreditsRequired int             `json:"credits_required"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewTask creates a pending image generation task for the owner.
// The input must already be normalized; priority and cost derive from it.
func NewTask(ownerID uuid.UUID, input GenerationInput) (*Task, error) {
	if ownerID == uuid.Nil {
		return nil, ErrInvalidID
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Task{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Kind:            TaskKindImageGeneration,
		Status:          TaskStatusPending,
		Priority:        input.Quality.Priority(),
		Input:           input,
		CreditsRequired: input.CreditsRequired(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// OwnedBy reports whether the task belongs to ownerID.
func (t *Task) OwnedBy(ownerID uuid.UUID) bool {
	return t != nil && ownerID != uuid.Nil && t.OwnerID == ownerID
}

// ErrorText returns the task's error message or the empty string.
func (t *Task) ErrorText() string {
	if t.ErrorMessage == nil {
		return ""
	}
	return *t.ErrorMessage
}
