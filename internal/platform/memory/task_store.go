// Package memory provides in-process implementations of the store
// interfaces. They back the "memory" database driver for local runs and
// are the stores most service tests run against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/store"
)

// TaskStore is a mutex-guarded store.TaskStore. Each method holds the lock
// for its whole check-and-write, which gives the same single-winner
// behavior as the conditional UPDATEs in the postgres store.
type TaskStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*domain.Task
	timeFunc func() time.Time
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:    make(map[uuid.UUID]*domain.Task),
		timeFunc: time.Now,
	}
}

// SetTimeFunc overrides the clock. Tests use it to age tasks.
func (s *TaskStore) SetTimeFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeFunc = fn
}

func (s *TaskStore) now() time.Time {
	return s.timeFunc().UTC()
}

func (s *TaskStore) Create(_ context.Context, task *domain.Task) error {
	if task == nil || task.ID == uuid.Nil || task.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: task id and owner are required", store.ErrInvalidEntity)
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: new tasks must be pending, got %s", store.ErrInvalidEntity, task.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *TaskStore) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make([]*domain.Task, 0)
	for _, task := range s.tasks {
		if task.OwnerID == ownerID {
			owned = append(owned, task)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if limit >= 0 && len(owned) > limit {
		owned = owned[:limit]
	}

	out := make([]*domain.Task, len(owned))
	for i, task := range owned {
		out[i] = cloneTask(task)
	}
	return out, nil
}

func (s *TaskStore) Claim(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.expect(id, domain.TaskStatusPending)
	if err != nil {
		return nil, err
	}
	s.start(task)
	return cloneTask(task), nil
}

func (s *TaskStore) ClaimNext(_ context.Context) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *domain.Task
	for _, task := range s.tasks {
		if task.Status != domain.TaskStatusPending {
			continue
		}
		if next == nil || claimsBefore(task, next) {
			next = task
		}
	}
	if next == nil {
		return nil, store.ErrTaskNotFound
	}
	s.start(next)
	return cloneTask(next), nil
}

func (s *TaskStore) Complete(_ context.Context, id uuid.UUID, result *domain.Result) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.expect(id, domain.TaskStatusProcessing)
	if err != nil {
		return err
	}
	now := s.now()
	task.Status = domain.TaskStatusCompleted
	task.Result = cloneResult(result)
	task.CompletedAt = &now
	task.UpdatedAt = now
	return nil
}

func (s *TaskStore) Fail(_ context.Context, id uuid.UUID, expected domain.TaskStatus, message string) error {
	if !domain.CanTransition(expected, domain.TaskStatusFailed) {
		return fmt.Errorf("%w: %s -> failed", domain.ErrInvalidTransition, expected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.expect(id, expected)
	if err != nil {
		return err
	}
	s.finish(task, domain.TaskStatusFailed, message)
	return nil
}

func (s *TaskStore) Cancel(_ context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	if !domain.CanTransition(task.Status, domain.TaskStatusCancelled) {
		return cloneTask(task), store.ErrStatusConflict
	}
	s.finish(task, domain.TaskStatusCancelled, domain.MessageCancelledByUser)
	return cloneTask(task), nil
}

func (s *TaskStore) AttachStoredImages(_ context.Context, id uuid.UUID, result *domain.Result) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.expect(id, domain.TaskStatusCompleted)
	if err != nil {
		return err
	}
	if task.Result == nil || !task.Result.UploadPending {
		return fmt.Errorf("%w: stored images already attached", store.ErrStatusConflict)
	}
	task.Result = cloneResult(result)
	task.UpdatedAt = s.now()
	return nil
}

func (s *TaskStore) FailStale(
	_ context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	message string,
) (int, error) {
	if status != domain.TaskStatusPending && status != domain.TaskStatusProcessing {
		return 0, fmt.Errorf("%w: cannot reap %s tasks", domain.ErrInvalidTransition, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, task := range s.tasks {
		if task.Status != status {
			continue
		}
		since := task.CreatedAt
		if status == domain.TaskStatusProcessing && task.StartedAt != nil {
			since = *task.StartedAt
		}
		if since.Before(cutoff) {
			s.finish(task, domain.TaskStatusFailed, message)
			n++
		}
	}
	return n, nil
}

// expect returns the live task when it is in status. Callers hold s.mu.
func (s *TaskStore) expect(id uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if task.Status != status {
		return nil, fmt.Errorf("%w: task is %s", store.ErrStatusConflict, task.Status)
	}
	return task, nil
}

func (s *TaskStore) start(task *domain.Task) {
	now := s.now()
	task.Status = domain.TaskStatusProcessing
	task.StartedAt = &now
	task.UpdatedAt = now
}

func (s *TaskStore) finish(task *domain.Task, status domain.TaskStatus, message string) {
	now := s.now()
	msg := message
	task.Status = status
	task.ErrorMessage = &msg
	task.CompletedAt = &now
	task.UpdatedAt = now
}

func claimsBefore(a, b *domain.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Result = cloneResult(t.Result)
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		c.ErrorMessage = &msg
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

func cloneResult(r *domain.Result) *domain.Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Images = append([]string(nil), r.Images...)
	c.StoredURLs = append([]string(nil), r.StoredURLs...)
	c.StoredImages = append([]domain.StoredImage(nil), r.StoredImages...)
	return &c
}
