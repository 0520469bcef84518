package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/store"
	"golang.org/x/time/rate"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 2 * time.Minute

// ErrNoPendingTask is returned by ProcessNext when nothing is waiting.
var ErrNoPendingTask = errors.New("no pending task")

// WorkerConfig holds the worker's limits.
type WorkerConfig struct {
	// ProviderTimeout is the hard deadline for one provider call.
	ProviderTimeout time.Duration
	// RequestsPerSecond paces provider calls across all goroutines sharing
	// the worker. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Outcome describes what a worker did with a task.
type Outcome struct {
	TaskID uuid.UUID         `json:"taskId"`
	Status domain.TaskStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
	// Superseded is set when another writer moved the task first and the
	// worker's result was discarded.
	Superseded bool `json:"superseded,omitempty"`
}

// Worker executes generation tasks. It is safe for concurrent use.
type Worker struct {
	store      store.TaskStore
	provider   generation.Provider
	authorizer credits.Authorizer
	uploads    UploadDispatcher
	limiter    *rate.Limiter
	timeout    time.Duration
	timeFunc   func() time.Time
	logger     *slog.Logger
}

// NewWorker creates a Worker. uploads may be nil, in which case results keep
// only their inline images.
func NewWorker(
	taskStore store.TaskStore,
	provider generation.Provider,
	authorizer credits.Authorizer,
	uploads UploadDispatcher,
	cfg WorkerConfig,
	log *slog.Logger,
) *Worker {
	if taskStore == nil {
		panic("task store cannot be nil")
	}
	if provider == nil {
		panic("generation provider cannot be nil")
	}
	if authorizer == nil {
		panic("credit authorizer cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Worker{
		store:      taskStore,
		provider:   provider,
		authorizer: authorizer,
		uploads:    uploads,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.ProviderTimeout,
		timeFunc:   time.Now,
		logger:     log.With(slog.String("component", "task_worker")),
	}
}

// ProcessTask claims a specific pending task and runs it. A task that is no
// longer pending yields store.ErrStatusConflict and is left alone.
func (w *Worker) ProcessTask(ctx context.Context, id uuid.UUID) (Outcome, error) {
	task, err := w.store.Claim(ctx, id)
	if err != nil {
		return Outcome{TaskID: id}, fmt.Errorf("failed to claim task %s: %w", id, err)
	}
	return w.execute(ctx, task), nil
}

// ProcessNext claims the highest-priority pending task and runs it.
// Returns ErrNoPendingTask when the queue is empty.
func (w *Worker) ProcessNext(ctx context.Context) (Outcome, error) {
	task, err := w.store.ClaimNext(ctx)
	if errors.Is(err, store.ErrTaskNotFound) {
		return Outcome{}, ErrNoPendingTask
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to claim next task: %w", err)
	}
	return w.execute(ctx, task), nil
}

// execute runs a claimed (processing) task to a terminal state. Once
// claimed, the task no longer follows the caller's cancellation; the
// provider timeout bounds the work instead.
func (w *Worker) execute(ctx context.Context, task *domain.Task) Outcome {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContextOrDefault(ctx, w.logger).With(
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", task.OwnerID.String()),
	)
	log.Info("processing task", slog.String("quality", string(task.Input.Quality)), slog.Int("count", task.Input.Count))

	images, err := w.generate(ctx, task)
	if err != nil {
		return w.fail(ctx, log, task, err)
	}

	result := domain.NewResult(task.Input.Prompt, task.Input.OutputFormat, images, w.timeFunc())
	if err := w.store.Complete(ctx, task.ID, result); err != nil {
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrTaskNotFound) {
			log.Info("task left processing before completion; discarding images")
			return Outcome{TaskID: task.ID, Superseded: true}
		}
		log.Error("failed to record completion", slog.String("error", redact.Error(err)))
		return Outcome{TaskID: task.ID, Status: domain.TaskStatusProcessing, Error: "failed to record completion"}
	}
	log.Info("task completed", slog.Int("images", len(images)))

	if err := w.authorizer.FinalizeConsumption(ctx, task.OwnerID, task.CreditsRequired, task.ID); err != nil {
		log.Error("failed to finalize credit consumption",
			slog.Int("credits", task.CreditsRequired),
			slog.String("error", redact.Error(err)))
	}

	if w.uploads != nil {
		if err := w.uploads.Dispatch(ctx, task.ID); err != nil {
			log.Error("failed to dispatch result upload", slog.String("error", redact.Error(err)))
		}
	}

	return Outcome{TaskID: task.ID, Status: domain.TaskStatusCompleted}
}

func (w *Worker) generate(ctx context.Context, task *domain.Task) ([]generation.Image, error) {
	waitCtx, cancelWait := context.WithTimeout(ctx, w.timeout)
	err := w.limiter.Wait(waitCtx)
	cancelWait()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrProviderFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	images, err := w.provider.Generate(callCtx, generation.NewRequest(task.Input))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, generation.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", generation.ErrTimeout, err)
		}
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images returned", generation.ErrInvalidResponse)
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("%w: image %d missing data", generation.ErrInvalidResponse, i+1)
		}
	}
	return images, nil
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, task *domain.Task, cause error) Outcome {
	message := generation.ClientMessage(cause)
	log.Error("generation failed",
		slog.String("error", redact.Error(cause)),
		slog.String("message", message))

	err := w.store.Fail(ctx, task.ID, domain.TaskStatusProcessing, message)
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrTaskNotFound) {
			log.Info("task left processing before failure could be recorded")
			return Outcome{TaskID: task.ID, Superseded: true}
		}
		log.Error("failed to record task failure", slog.String("error", redact.Error(err)))
	}
	return Outcome{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: message}
}
