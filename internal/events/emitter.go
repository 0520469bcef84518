package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter fans task events out to handlers registered in this
// process. Handlers run synchronously in registration order and must not block.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler adds a handler for every subsequent event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()
	e.logger.Debug("event handler registered", "handler", fmt.Sprintf("%T", handler), "handler_count", n)
}

// EmitEvent delivers event to every handler. A failing or panicking handler
// does not stop delivery to the rest; all failures are joined into the
// returned error.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	log := e.logger.With("event_type", event.Type, "task_id", event.TaskID, "owner_id", event.OwnerID)
	log.Debug("emitting event", "handler_count", len(handlers))

	var errs []error
	for _, handler := range handlers {
		if err := deliver(ctx, handler, event); err != nil {
			log.Warn("event handler failed", "handler", fmt.Sprintf("%T", handler), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, handler EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, event)
}
