package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the WakeQueue
var (
	ErrQueueClosed = errors.New("wake queue is closed")
	ErrQueueFull   = errors.New("wake queue is full")
)

// WakeQueue is a bounded, non-blocking queue of task ids waiting for a
// worker. uuid.Nil means "claim whatever is next in the store".
type WakeQueue struct {
	mu     sync.RWMutex
	ids    chan uuid.UUID
	logger *slog.Logger
	closed bool
}

// NewWakeQueue creates a queue with the specified buffer size.
func NewWakeQueue(size int, logger *slog.Logger) *WakeQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeQueue{
		ids:    make(chan uuid.UUID, size),
		logger: logger,
	}
}

// Enqueue adds a wake-up without blocking.
// Returns an error if the queue is full or closed.
func (q *WakeQueue) Enqueue(id uuid.UUID) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("wake-up enqueued",
			"task_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close closes the queue, preventing further wake-ups.
func (q *WakeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Debug("wake queue closed")
	}
}

// Len returns the number of queued wake-ups.
func (q *WakeQueue) Len() int {
	return len(q.ids)
}

// C returns a read-only channel for consuming wake-ups.
func (q *WakeQueue) C() <-chan uuid.UUID {
	return q.ids
}
