package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/events"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskEvent
	err    error
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

type serviceFixture struct {
	svc     *TaskService
	tasks   *memory.TaskStore
	ledger  *credits.LedgerService
	emitter *recordingEmitter
	owner   uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		tasks:   memory.NewTaskStore(),
		ledger:  credits.NewLedgerService(memory.NewCreditStore(), credits.DefaultInitialGrant, discardLogger()),
		emitter: &recordingEmitter{},
		owner:   uuid.New(),
	}
	svc, err := NewTaskService(f.tasks, f.ledger, f.emitter, 0, discardLogger())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestTaskService_Submit(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	res, err := f.svc.Submit(context.Background(), f.owner, domain.GenerationRequest{
		Prompt:   "  chrome ombre almond nails ",
		Quality:  "Medium",
		Count:    3,
		SkinTone: "unknown-tone",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CreditsRequired)
	assert.Equal(t, domain.TaskStatusPending, res.Status)

	task, err := f.tasks.GetByID(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, f.owner, task.OwnerID)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, "chrome ombre almond nails", task.Input.Prompt)
	assert.Equal(t, domain.SkinToneMedium, task.Input.SkinTone)
	assert.Equal(t, domain.ImageSizeSquare, task.Input.Size)
	assert.Equal(t, domain.OutputFormatPNG, task.Input.OutputFormat)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, events.TypeTaskSubmitted, f.emitter.events[0].Type)
	assert.Equal(t, res.TaskID, f.emitter.events[0].TaskID)

	balance, err := f.svc.Balance(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Zero(t, balance.UsedCredits, "credits are charged on completion, not submission")
}

func TestTaskService_SubmitInsufficientCredits(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, err := f.svc.Submit(context.Background(), f.owner, domain.GenerationRequest{
		Prompt:  "holographic french tips",
		Quality: "high",
		Count:   4,
	})

	var insufficient *credits.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 20, insufficient.Required)
	assert.Equal(t, 10, insufficient.Available)
	assert.Equal(t, 10, insufficient.Shortfall())

	history, err := f.svc.History(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Empty(t, history, "no task is created")
	assert.Empty(t, f.emitter.events)
}

func TestTaskService_SubmitValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]domain.GenerationRequest{
		"empty prompt":   {Prompt: "   "},
		"bad size":       {Prompt: "x", Size: "512x512"},
		"bad quality":    {Prompt: "x", Quality: "ultra"},
		"too many":       {Prompt: "x", Count: 5},
		"negative count": {Prompt: "x", Count: -1},
		"bad format":     {Prompt: "x", OutputFormat: "gif"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newServiceFixture(t)
			_, err := f.svc.Submit(context.Background(), f.owner, req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestTaskService_SubmitSurvivesEmitFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.emitter.err = errors.New("queue full")

	res, err := f.svc.Submit(context.Background(), f.owner, domain.GenerationRequest{Prompt: "matte black coffin"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.CreditsRequired)
}

func TestTaskService_Cancel(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	res, err := f.svc.Submit(context.Background(), f.owner, domain.GenerationRequest{Prompt: "pastel swirls", Quality: "medium"})
	require.NoError(t, err)

	t.Run("other owner sees not found", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), uuid.New(), res.TaskID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("owner cancels", func(t *testing.T) {
		task, err := f.svc.Cancel(context.Background(), f.owner, res.TaskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, task.Status)
	})

	t.Run("second cancel is refused with current status", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), f.owner, res.TaskID)
		var refused *CancelRefusedError
		require.ErrorAs(t, err, &refused)
		assert.Equal(t, domain.TaskStatusCancelled, refused.Current)
		assert.ErrorIs(t, err, ErrCancelRefused)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), f.owner, uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestTaskService_GetIsOwnerScoped(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	res, err := f.svc.Submit(context.Background(), f.owner, domain.GenerationRequest{Prompt: "glitter gradient", Quality: "medium"})
	require.NoError(t, err)

	task, err := f.svc.Get(context.Background(), f.owner, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, res.TaskID, task.ID)

	_, err = f.svc.Get(context.Background(), uuid.New(), res.TaskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.svc.Get(context.Background(), f.owner, uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskService_HistoryNewestFirst(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc, err := NewTaskService(f.tasks, f.ledger, nil, 2, discardLogger())
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, prompt := range []string{"one", "two", "three"} {
		res, err := svc.Submit(context.Background(), f.owner, domain.GenerationRequest{Prompt: prompt, Quality: "medium"})
		require.NoError(t, err)
		ids = append(ids, res.TaskID)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := svc.History(context.Background(), f.owner)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)
}

type failingTaskStore struct {
	store.TaskStore
}

func (failingTaskStore) Create(context.Context, *domain.Task) error {
	return errors.New("connection refused")
}

func TestTaskService_SubmitStoreFailure(t *testing.T) {
	t.Parallel()

	ledger := credits.NewLedgerService(memory.NewCreditStore(), credits.DefaultInitialGrant, discardLogger())
	emitter := &recordingEmitter{}
	svc, err := NewTaskService(failingTaskStore{memory.NewTaskStore()}, ledger, emitter, 0, discardLogger())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), uuid.New(), domain.GenerationRequest{Prompt: "x"})
	var svcErr *TaskServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "submit", svcErr.Operation)
	assert.Empty(t, emitter.events)
}

func TestNewTaskService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	ledger := credits.NewLedgerService(memory.NewCreditStore(), 10, nil)
	_, err := NewTaskService(nil, ledger, nil, 0, nil)
	assert.Error(t, err)
	_, err = NewTaskService(memory.NewTaskStore(), nil, nil, 0, nil)
	assert.Error(t, err)
}
