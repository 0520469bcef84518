package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/events"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/store"
)

// DefaultHistoryLimit is the number of tasks returned by History.
const DefaultHistoryLimit = 30

// SubmitResult is returned to the caller as soon as a task is recorded.
type SubmitResult struct {
	TaskID          uuid.UUID         `json:"taskId"`
	CreditsRequired int               `json:"creditsRequired"`
	Status          domain.TaskStatus `json:"status"`
}

// TaskService implements submission, cancellation and the owner's task reads.
type TaskService struct {
	tasks        store.TaskStore
	authorizer   credits.Authorizer
	eventEmitter events.EventEmitter
	historyLimit int
	logger       *slog.Logger
}

// NewTaskService creates a TaskService. The emitter may be nil, in which case
// new tasks wait for the runner's sweep.
func NewTaskService(
	tasks store.TaskStore,
	authorizer credits.Authorizer,
	eventEmitter events.EventEmitter,
	historyLimit int,
	logger *slog.Logger,
) (*TaskService, error) {
	if tasks == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "task store cannot be nil"}
	}
	if authorizer == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "credit authorizer cannot be nil"}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		tasks:        tasks,
		authorizer:   authorizer,
		eventEmitter: eventEmitter,
		historyLimit: historyLimit,
		logger:       logger.With("component", "task_service"),
	}, nil
}

// Submit validates the request, checks the owner can afford it and records a
// pending task. It returns without waiting for generation.
func (s *TaskService) Submit(
	ctx context.Context,
	ownerID uuid.UUID,
	req domain.GenerationRequest,
) (*SubmitResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("owner_id", ownerID)

	input, err := domain.NormalizeRequest(req)
	if err != nil {
		return nil, err
	}
	required := input.CreditsRequired()

	auth, err := s.authorizer.CheckAndReserve(ctx, ownerID, required)
	if err != nil {
		log.Error("failed to check credits", "error", redact.Error(err))
		return nil, NewTaskServiceError("submit", "failed to check credits", err)
	}
	if !auth.OK {
		log.Info("submission rejected for insufficient credits",
			"required", required,
			"available", auth.Available)
		return nil, &credits.InsufficientCreditsError{Required: required, Available: auth.Available}
	}

	task, err := domain.NewTask(ownerID, input)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to save task", "error", redact.Error(err))
		return nil, NewTaskServiceError("submit", "failed to save task", err)
	}

	log.Info("task submitted",
		"task_id", task.ID,
		"quality", input.Quality,
		"count", input.Count,
		"credits_required", required)

	s.announce(ctx, task)

	return &SubmitResult{
		TaskID:          task.ID,
		CreditsRequired: task.CreditsRequired,
		Status:          task.Status,
	}, nil
}

// announce wakes the runner. Failures only delay the task until the next sweep.
func (s *TaskService) announce(ctx context.Context, task *domain.Task) {
	if s.eventEmitter == nil {
		return
	}
	event := events.NewTaskEvent(events.TypeTaskSubmitted, task.ID, task.OwnerID)
	if err := s.eventEmitter.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("task wake-up not delivered",
			"task_id", task.ID,
			"error", redact.Error(err))
	}
}

// Cancel cancels the owner's pending or processing task. A task that is
// already terminal yields a CancelRefusedError carrying its status.
func (s *TaskService) Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.Cancel(ctx, taskID, ownerID)
	if errors.Is(err, store.ErrStatusConflict) && task != nil {
		return nil, &CancelRefusedError{Current: task.Status}
	}
	if err != nil {
		return nil, NewTaskServiceError("cancel", "failed to cancel task", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("task cancelled",
		"task_id", taskID,
		"owner_id", ownerID)
	return task, nil
}

// Get returns one of the owner's tasks.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("get", "failed to load task", err)
	}
	if !task.OwnedBy(ownerID) {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// History returns the owner's most recent tasks, newest first.
func (s *TaskService) History(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	tasks, err := s.tasks.ListByOwner(ctx, ownerID, s.historyLimit)
	if err != nil {
		return nil, NewTaskServiceError("history", "failed to list tasks", err)
	}
	return tasks, nil
}

// Balance returns the owner's credit account.
func (s *TaskService) Balance(ctx context.Context, ownerID uuid.UUID) (*store.CreditBalance, error) {
	balance, err := s.authorizer.Balance(ctx, ownerID)
	if err != nil {
		return nil, NewTaskServiceError("balance", "failed to load balance", err)
	}
	return balance, nil
}
