//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/postgres"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(context.Background(), db, "up", nil))
	_, err = db.Exec(`TRUNCATE generation_tasks, credit_transactions, user_credits`)
	require.NoError(t, err)
	return db
}

func newPendingTask(t *testing.T, owner uuid.UUID, quality string) *domain.Task {
	t.Helper()
	input, err := domain.NormalizeRequest(domain.GenerationRequest{Prompt: "holographic chrome", Quality: quality})
	require.NoError(t, err)
	task, err := domain.NewTask(owner, input)
	require.NoError(t, err)
	return task
}

func TestIntegration_ClaimNextIsExclusive(t *testing.T) {
	db := openTestDB(t)
	s := postgres.NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	owner := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, newPendingTask(t, owner, "medium")))
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := s.ClaimNext(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 5)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestIntegration_PriorityOrder(t *testing.T) {
	db := openTestDB(t)
	s := postgres.NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	owner := uuid.New()
	medium := newPendingTask(t, owner, "medium")
	require.NoError(t, s.Create(ctx, medium))
	high := newPendingTask(t, owner, "high")
	high.CreatedAt = medium.CreatedAt.Add(time.Second)
	require.NoError(t, s.Create(ctx, high))

	first, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, high.ID, first.ID)
}

func TestIntegration_CancelRacesCompletion(t *testing.T) {
	db := openTestDB(t)
	s := postgres.NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	owner := uuid.New()
	task := newPendingTask(t, owner, "high")
	require.NoError(t, s.Create(ctx, task))
	_, err := s.Claim(ctx, task.ID)
	require.NoError(t, err)

	_, err = s.Cancel(ctx, task.ID, owner)
	require.NoError(t, err)

	result := domain.NewResult("p", domain.OutputFormatPNG, []domain.GeneratedImage{{Data: []byte("x")}}, time.Now())
	err = s.Complete(ctx, task.ID, result)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
	assert.Nil(t, got.Result)
}

func TestIntegration_CreditChargeOncePerTask(t *testing.T) {
	db := openTestDB(t)
	credits := postgres.NewPostgresCreditStore(db, nil)
	ctx := context.Background()

	owner, taskID := uuid.New(), uuid.New()
	balance, err := credits.GetOrCreate(ctx, owner, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, balance.Available())

	require.NoError(t, credits.Consume(ctx, owner, 5, taskID, "Image generation"))
	assert.ErrorIs(t, credits.Consume(ctx, owner, 5, taskID, "Image generation"), store.ErrAlreadyApplied)
	assert.ErrorIs(t, credits.Consume(ctx, owner, 6, uuid.New(), "Image generation"), store.ErrInsufficientBalance)

	balance, err = credits.GetOrCreate(ctx, owner, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Available())
}
