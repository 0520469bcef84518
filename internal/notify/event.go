// Package notify streams a task's status to its owner.
//
// A Stream is transport-agnostic: it writes Events to a Sink until the task
// reaches a terminal state, the client goes away, or the session's lifetime
// runs out. The HTTP layer supplies an SSE sink.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
)

// EventType names a stream event.
type EventType string

// Stream event types.
const (
	EventConnected     EventType = "connected"
	EventTaskStatus    EventType = "task_status"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
	EventError         EventType = "error"
)

// Error event messages.
const (
	MessageAuthRequired   = "Authentication required"
	MessageTaskNotFound   = "Task not found or access denied"
	MessageMonitorFailed  = "Failed to monitor task status"
	defaultFailureMessage = "Task processing failed"
)

// Event is one message on a status stream.
type Event struct {
	Type      EventType         `json:"type"`
	TaskID    string            `json:"taskId,omitempty"`
	Status    domain.TaskStatus `json:"status,omitempty"`
	Progress  *int              `json:"progress,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Message   string            `json:"message,omitempty"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	Result    *domain.Result    `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends a task's stream.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventTaskCompleted, EventTaskFailed, EventTaskCancelled:
		return true
	}
	return false
}

func connectedEvent(taskID uuid.UUID) Event {
	return Event{Type: EventConnected, TaskID: taskID.String()}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// statusEvent snapshots the task. withUpdatedAt is set for deltas after the
// first snapshot.
func statusEvent(task *domain.Task, withUpdatedAt bool) Event {
	progress := task.Status.Progress()
	ev := Event{
		Type:     EventTaskStatus,
		TaskID:   task.ID.String(),
		Status:   task.Status,
		Progress: &progress,
		Stage:    string(task.Status),
		Message:  task.Status.Message(),
	}
	if withUpdatedAt {
		updated := task.UpdatedAt
		ev.UpdatedAt = &updated
	}
	return ev
}

// terminalEvent returns the closing event for a finished task.
func terminalEvent(task *domain.Task) Event {
	ev := Event{TaskID: task.ID.String(), Status: task.Status}
	switch task.Status {
	case domain.TaskStatusCompleted:
		ev.Type = EventTaskCompleted
		ev.Result = task.Result
	case domain.TaskStatusFailed:
		ev.Type = EventTaskFailed
		ev.Error = task.ErrorText()
		if ev.Error == "" {
			ev.Error = defaultFailureMessage
		}
	default:
		ev.Type = EventTaskCancelled
		ev.Message = task.Status.Message()
	}
	return ev
}

// Sink receives stream events in order.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error {
	return f(ev)
}

// SafeSink guards a transport that may close underneath the stream. After
// Close or the first failed Send, further sends are dropped silently.
type SafeSink struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
}

// NewSafeSink wraps sink.
func NewSafeSink(sink Sink) *SafeSink {
	return &SafeSink{sink: sink}
}

// Send forwards ev unless the sink is closed. It reports whether ev was
// delivered.
func (s *SafeSink) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if err := s.sink.Send(ev); err != nil {
		s.closed = true
		return false
	}
	return true
}

// Close marks the sink closed. It is safe to call more than once.
func (s *SafeSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether the sink has stopped accepting events.
func (s *SafeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
