package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/events"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/store"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the wake queue
	QueueSize int

	// SweepInterval defines how often the store is polled for pending tasks
	// whose wake-up was lost
	SweepInterval time.Duration

	// ReapInterval defines how often stale tasks are failed.
	// Zero disables the scheduled reaper.
	ReapInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:   2,
		QueueSize:     100,
		SweepInterval: 30 * time.Second,
		ReapInterval:  5 * time.Minute,
	}
}

// TaskRunner feeds a pool of goroutines with wake-ups and runs each one
// through the Worker. Lost wake-ups are covered by a periodic sweep that
// claims whatever is pending.
type TaskRunner struct {
	worker     *Worker
	reaper     *Reaper
	queue      *WakeQueue
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	stopOnce   sync.Once
}

var _ events.EventHandler = (*TaskRunner)(nil)

// NewTaskRunner creates a new TaskRunner. reaper may be nil.
func NewTaskRunner(worker *Worker, reaper *Reaper, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if worker == nil {
		panic("worker cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultTaskRunnerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	logger = logger.With(slog.String("component", "task_runner"))

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		worker:     worker,
		reaper:     reaper,
		queue:      NewWakeQueue(config.QueueSize, logger),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
	}
}

// Wake asks a worker to try the given task. uuid.Nil asks for whatever is
// next in the store. Wake never blocks; a full queue drops the wake-up.
func (r *TaskRunner) Wake(id uuid.UUID) error {
	return r.queue.Enqueue(id)
}

// HandleEvent wakes a worker for submitted tasks.
func (r *TaskRunner) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	if event == nil || event.Type != events.TypeTaskSubmitted {
		return nil
	}
	err := r.Wake(event.TaskID)
	if errors.Is(err, ErrQueueFull) {
		r.logger.Debug("wake-up dropped, sweep will pick the task up", "task_id", event.TaskID)
		return nil
	}
	return err
}

// Start reaps stale tasks, then starts the workers and the background
// sweep and reap loops.
func (r *TaskRunner) Start() error {
	if r.reaper != nil {
		if _, err := r.reaper.Sweep(r.ctx); err != nil {
			return fmt.Errorf("failed to reap stale tasks: %w", err)
		}
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.work(i)
	}

	// Pick up anything left pending by a previous run.
	r.sweep()

	r.wg.Add(1)
	go r.sweepLoop()

	if r.reaper != nil && r.config.ReapInterval > 0 {
		r.wg.Add(1)
		go r.reapLoop()
	}

	r.logger.Info("task runner started", "workers", r.config.WorkerCount)
	return nil
}

// Stop gracefully shuts down the task runner. Tasks already being
// processed run to completion.
func (r *TaskRunner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.queue.Close()
		r.wg.Wait()
		r.logger.Info("task runner stopped")
	})
}

// work processes wake-ups from the queue
func (r *TaskRunner) work(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-r.queue.C():
			if !ok {
				r.logger.Debug("wake queue closed, stopping worker", "worker_id", id)
				return
			}
			if taskID == uuid.Nil {
				r.drain(id)
			} else {
				r.processTask(taskID, id)
			}
		}
	}
}

// processTask runs one specific task
func (r *TaskRunner) processTask(taskID uuid.UUID, workerID int) {
	ctx := context.WithoutCancel(r.ctx)
	_, err := r.worker.ProcessTask(ctx, taskID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStatusConflict), errors.Is(err, store.ErrTaskNotFound):
		r.logger.Debug("task already taken", "task_id", taskID, "worker_id", workerID)
	default:
		r.logger.Error("failed to process task",
			"task_id", taskID,
			"worker_id", workerID,
			"error", redact.Error(err))
	}
}

// drain claims pending tasks until none are left or the runner stops
func (r *TaskRunner) drain(workerID int) {
	ctx := context.WithoutCancel(r.ctx)
	for r.ctx.Err() == nil {
		_, err := r.worker.ProcessNext(ctx)
		if errors.Is(err, ErrNoPendingTask) {
			return
		}
		if err != nil {
			r.logger.Error("failed to claim pending task",
				"worker_id", workerID,
				"error", redact.Error(err))
			return
		}
	}
}

// sweep queues one "claim next" wake-up per worker
func (r *TaskRunner) sweep() {
	for i := 0; i < r.config.WorkerCount; i++ {
		if err := r.queue.Enqueue(uuid.Nil); err != nil {
			return
		}
	}
}

func (r *TaskRunner) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.queue.Len() == 0 {
				r.sweep()
			}
		}
	}
}

// reapLoop periodically fails tasks that have been pending or processing
// for too long
func (r *TaskRunner) reapLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.reaper.Sweep(r.ctx); err != nil {
				r.logger.Error("failed to reap stale tasks", "error", redact.Error(err))
			}
		}
	}
}
