package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/phrazzld/nailart-api/internal/mocks"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/stretchr/testify/require"
)

// fixture wires a worker against in-memory stores.
type fixture struct {
	tasks   *memory.TaskStore
	ledger  *credits.LedgerService
	uploads *recordingDispatcher
	owner   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks:   memory.NewTaskStore(),
		ledger:  credits.NewLedgerService(memory.NewCreditStore(), credits.DefaultInitialGrant, discardLogger()),
		uploads: &recordingDispatcher{},
		owner:   uuid.New(),
	}
	_, err := f.ledger.Balance(context.Background(), f.owner)
	require.NoError(t, err)
	return f
}

func (f *fixture) worker(provider generation.Provider, cfg WorkerConfig) *Worker {
	return NewWorker(f.tasks, provider, f.ledger, f.uploads, cfg, discardLogger())
}

func (f *fixture) submit(t *testing.T, quality string, count int) *domain.Task {
	t.Helper()
	return f.submitAt(t, quality, count, time.Now())
}

func (f *fixture) submitAt(t *testing.T, quality string, count int, createdAt time.Time) *domain.Task {
	t.Helper()
	input, err := domain.NormalizeRequest(domain.GenerationRequest{
		Prompt:  "french tips with gold foil",
		Quality: quality,
		Count:   count,
	})
	require.NoError(t, err)
	task, err := domain.NewTask(f.owner, input)
	require.NoError(t, err)
	task.CreatedAt = createdAt.UTC()
	task.UpdatedAt = task.CreatedAt
	require.NoError(t, f.tasks.Create(context.Background(), task))
	return task
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	task, err := f.tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (f *fixture) used(t *testing.T) int {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), f.owner)
	require.NoError(t, err)
	return balance.UsedCredits
}

// imagesProvider returns count fake PNG payloads per call.
func imagesProvider() *mocks.MockProvider {
	return mocks.NewMockProviderWithImages()
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(_ context.Context, taskID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, taskID)
	return nil
}

func (d *recordingDispatcher) dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}
