package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeTaskSubmitted announces a new pending task.
const TypeTaskSubmitted = "task.submitted"

// TaskEvent is a notification about one task.
type TaskEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	TaskID    uuid.UUID `json:"task_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a TaskEvent stamped with the current time.
func NewTaskEvent(eventType string, taskID, ownerID uuid.UUID) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
}

// Marshal encodes the event for transports such as Redis pub/sub.
func (e *TaskEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (*TaskEvent, error) {
	var e TaskEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode task event: %w", err)
	}
	if e.Type == "" || e.TaskID == uuid.Nil {
		return nil, fmt.Errorf("task event missing type or task id")
	}
	return &e, nil
}

// EventHandler reacts to task events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter publishes task events to registered handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}
