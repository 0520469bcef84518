package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []*TaskEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *TaskEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestInMemoryEventEmitter_EmitEvent(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(nil)
	first, second := &recordingHandler{}, &recordingHandler{}
	emitter.RegisterHandler(first)
	emitter.RegisterHandler(second)

	event := NewTaskEvent(TypeTaskSubmitted, uuid.New(), uuid.New())
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	assert.Same(t, event, first.events[0])
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(nil)
	err := emitter.EmitEvent(context.Background(), NewTaskEvent(TypeTaskSubmitted, uuid.New(), uuid.New()))
	assert.NoError(t, err)
}

func TestInMemoryEventEmitter_HandlerErrors(t *testing.T) {
	t.Parallel()

	errFirst, errSecond := errors.New("first"), errors.New("second")
	emitter := NewInMemoryEventEmitter(nil)
	healthy := &recordingHandler{}
	emitter.RegisterHandler(&recordingHandler{err: errFirst})
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *TaskEvent) error { panic("queue closed") }))
	emitter.RegisterHandler(&recordingHandler{err: errSecond})
	emitter.RegisterHandler(healthy)

	err := emitter.EmitEvent(context.Background(), NewTaskEvent(TypeTaskSubmitted, uuid.New(), uuid.New()))
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errSecond)
	assert.ErrorContains(t, err, "panicked: queue closed")
	assert.Equal(t, 1, healthy.count(), "later handlers still run")
}

func TestInMemoryEventEmitter_ConcurrentUse(t *testing.T) {
	t.Parallel()

	emitter := NewInMemoryEventEmitter(nil)
	handler := &recordingHandler{}
	emitter.RegisterHandler(handler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = emitter.EmitEvent(context.Background(), NewTaskEvent(TypeTaskSubmitted, uuid.New(), uuid.New()))
		}()
		go func() {
			defer wg.Done()
			emitter.RegisterHandler(HandlerFunc(func(context.Context, *TaskEvent) error { return nil }))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, handler.count())
}
