package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaper_Sweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stalePending := f.submitAt(t, "medium", 1, now.Add(-11*time.Minute))
	freshPending := f.submitAt(t, "medium", 1, now.Add(-9*time.Minute))

	// Old task claimed recently: processing age counts from started_at.
	recentlyClaimed := f.submitAt(t, "high", 1, now.Add(-9*time.Minute))
	stuck := f.submitAt(t, "high", 1, now.Add(-40*time.Minute))

	f.tasks.SetTimeFunc(func() time.Time { return now.Add(-31 * time.Minute) })
	_, err := f.tasks.Claim(context.Background(), stuck.ID)
	require.NoError(t, err)
	f.tasks.SetTimeFunc(func() time.Time { return now.Add(-29 * time.Minute) })
	_, err = f.tasks.Claim(context.Background(), recentlyClaimed.ID)
	require.NoError(t, err)
	f.tasks.SetTimeFunc(func() time.Time { return now })

	reaper := NewReaper(f.tasks, 10*time.Minute, 30*time.Minute, discardLogger())
	reaper.timeFunc = func() time.Time { return now }

	report, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapReport{Pending: 1, Processing: 1, Total: 2}, report)

	got := f.get(t, stalePending.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "Task timed out after 10 minutes in pending state", got.ErrorText())

	got = f.get(t, stuck.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "Task timed out after 30 minutes in processing state", got.ErrorText())

	assert.Equal(t, domain.TaskStatusPending, f.get(t, freshPending.ID).Status)
	assert.Equal(t, domain.TaskStatusProcessing, f.get(t, recentlyClaimed.ID).Status)

	again, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Total)
}

func TestReaper_NeverTouchesTerminalTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	old := time.Now().Add(-24 * time.Hour)
	done := f.submitAt(t, "medium", 1, old)
	_, err := f.tasks.Cancel(context.Background(), done.ID, f.owner)
	require.NoError(t, err)

	report, err := NewReaper(f.tasks, 0, 0, discardLogger()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)

	got := f.get(t, done.ID)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
	assert.Equal(t, domain.MessageCancelledByUser, got.ErrorText())
}

type failingStaleStore struct {
	*memory.TaskStore
}

func (s failingStaleStore) FailStale(context.Context, domain.TaskStatus, time.Time, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestReaper_StoreError(t *testing.T) {
	t.Parallel()

	_, err := NewReaper(failingStaleStore{memory.NewTaskStore()}, 0, 0, discardLogger()).Sweep(context.Background())
	assert.ErrorContains(t, err, "failed to reap pending tasks")
}
