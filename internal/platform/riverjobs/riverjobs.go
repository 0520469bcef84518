// Package riverjobs runs post-completion image uploads as durable River jobs
// so an upload interrupted by a restart is retried instead of lost.
package riverjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/nailart-api/internal/task"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// Queue is the River queue upload jobs run on.
const Queue = "uploads"

// MaxAttempts bounds how often River retries one upload job.
const MaxAttempts = 5

// UploadArgs identifies the task whose images should be stored.
type UploadArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (UploadArgs) Kind() string { return "upload_task_result" }

// InsertOpts deduplicates jobs per task while one is still queued or running.
func (UploadArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       Queue,
		MaxAttempts: MaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// Uploader performs the upload. task.ResultUploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, taskID uuid.UUID) error
}

// UploadWorker is the River worker for UploadArgs.
type UploadWorker struct {
	river.WorkerDefaults[UploadArgs]
	uploader Uploader
}

// NewUploadWorker creates an UploadWorker.
func NewUploadWorker(uploader Uploader) *UploadWorker {
	return &UploadWorker{uploader: uploader}
}

func (w *UploadWorker) Work(ctx context.Context, job *river.Job[UploadArgs]) error {
	if job.Args.TaskID == uuid.Nil {
		return river.JobCancel(errors.New("upload job has no task id"))
	}
	return w.uploader.Upload(ctx, job.Args.TaskID)
}

func (w *UploadWorker) Timeout(*river.Job[UploadArgs]) time.Duration {
	return task.DefaultUploadTimeout
}

// InsertFunc enqueues an upload job.
type InsertFunc func(ctx context.Context, args UploadArgs) error

// Dispatcher implements task.UploadDispatcher by inserting River jobs.
type Dispatcher struct {
	insert InsertFunc
	logger *slog.Logger
}

var _ task.UploadDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher that inserts through client.
func NewDispatcher(client *river.Client[pgx.Tx], log *slog.Logger) *Dispatcher {
	return newDispatcher(func(ctx context.Context, args UploadArgs) error {
		_, err := client.Insert(ctx, args, nil)
		return err
	}, log)
}

func newDispatcher(insert InsertFunc, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{insert: insert, logger: log.With(slog.String("component", "river_upload_dispatcher"))}
}

func (d *Dispatcher) Dispatch(ctx context.Context, taskID uuid.UUID) error {
	if err := d.insert(ctx, UploadArgs{TaskID: taskID}); err != nil {
		return fmt.Errorf("failed to enqueue upload job: %w", err)
	}
	d.logger.Debug("upload job enqueued", slog.String("task_id", taskID.String()))
	return nil
}

// ClientConfig sizes the River client.
type ClientConfig struct {
	// MaxWorkers is the number of upload jobs run concurrently. Zero makes
	// the client insert-only.
	MaxWorkers int
}

// NewClient creates a River client on pool. With MaxWorkers > 0 it also
// works upload jobs through uploader.
func NewClient(pool *pgxpool.Pool, uploader Uploader, cfg ClientConfig, log *slog.Logger) (*river.Client[pgx.Tx], error) {
	if log == nil {
		log = slog.Default()
	}
	riverCfg := &river.Config{
		Logger: log.With(slog.String("component", "river")),
	}
	if cfg.MaxWorkers > 0 {
		if uploader == nil {
			return nil, errors.New("uploader is required to work upload jobs")
		}
		workers := river.NewWorkers()
		river.AddWorker(workers, NewUploadWorker(uploader))
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			Queue: {MaxWorkers: cfg.MaxWorkers},
		}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}
	return client, nil
}

// Migrate applies River's own schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up failed: %w", err)
	}
	log.Info("river migrations applied", slog.Int("versions", len(res.Versions)))
	return nil
}
