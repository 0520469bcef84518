package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/blob"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Upload defaults.
const (
	DefaultUploadConcurrency = 2
	DefaultUploadRetries     = 3
	DefaultUploadRetryBase   = 500 * time.Millisecond
	DefaultUploadTimeout     = 5 * time.Minute
)

// UploadDispatcher schedules the durable upload of a completed task's images.
// Dispatch must not wait for the upload itself.
type UploadDispatcher interface {
	Dispatch(ctx context.Context, taskID uuid.UUID) error
}

// UploaderConfig tunes ResultUploader.
type UploaderConfig struct {
	Folder      string
	Concurrency int
	MaxRetries  uint64
	RetryBase   time.Duration
}

// ResultUploader copies a completed task's inline images to blob storage and
// attaches the durable URLs to the task.
type ResultUploader struct {
	store  store.TaskStore
	blobs  blob.Store
	cfg    UploaderConfig
	logger *slog.Logger
}

// NewResultUploader creates a ResultUploader. With a nil blob store the
// upload is recorded as finished with no stored images.
func NewResultUploader(taskStore store.TaskStore, blobs blob.Store, cfg UploaderConfig, log *slog.Logger) *ResultUploader {
	if taskStore == nil {
		panic("task store cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Folder == "" {
		cfg.Folder = blob.DefaultFolder
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultUploadConcurrency
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultUploadRetryBase
	}
	return &ResultUploader{
		store:  taskStore,
		blobs:  blobs,
		cfg:    cfg,
		logger: log.With(slog.String("component", "result_uploader")),
	}
}

// Upload stores every image of the task and attaches the URLs. Running it
// again after a successful attach, or for a task that is not completed, does
// nothing. If any image fails the task is left untouched and the error is
// returned so the caller may retry.
func (u *ResultUploader) Upload(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, u.logger).With(slog.String("task_id", taskID.String()))

	task, err := u.store.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task for upload: %w", err)
	}
	if task.Status != domain.TaskStatusCompleted || task.Result == nil || !task.Result.UploadPending {
		log.Debug("nothing to upload", slog.String("status", string(task.Status)))
		return nil
	}

	stored, err := u.storeImages(ctx, task)
	if err != nil {
		log.Error("result upload failed", slog.String("error", redact.Error(err)))
		return err
	}

	err = u.store.AttachStoredImages(ctx, taskID, task.Result.WithStoredImages(stored))
	if errors.Is(err, store.ErrStatusConflict) {
		log.Debug("stored images already attached")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to attach stored images: %w", err)
	}

	log.Info("result images stored", slog.Int("images", len(stored)))
	return nil
}

func (u *ResultUploader) storeImages(ctx context.Context, task *domain.Task) ([]domain.StoredImage, error) {
	if u.blobs == nil {
		return []domain.StoredImage{}, nil
	}

	stored := make([]domain.StoredImage, len(task.Result.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Concurrency)

	for i, uri := range task.Result.Images {
		g.Go(func() error {
			mimeType, data, err := domain.DecodeDataURI(uri)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}

			key := blob.ImageKey(task.OwnerID, task.ID, i+1)
			backoff := retry.WithMaxRetries(u.cfg.MaxRetries, retry.NewExponential(u.cfg.RetryBase))
			obj, err := retry.DoValue(gctx, backoff, func(ctx context.Context) (blob.Object, error) {
				obj, err := u.blobs.Upload(ctx, data, mimeType, u.cfg.Folder, key)
				if err != nil {
					return blob.Object{}, retry.RetryableError(err)
				}
				return obj, nil
			})
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}

			stored[i] = domain.StoredImage{
				URL:      obj.URL,
				PublicID: obj.PublicID,
				Width:    obj.Width,
				Height:   obj.Height,
				Bytes:    obj.Bytes,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stored, nil
}

// InlineDispatcher runs uploads on background goroutines in this process.
type InlineDispatcher struct {
	uploader *ResultUploader
	timeout  time.Duration
	wg       sync.WaitGroup
	logger   *slog.Logger
}

var _ UploadDispatcher = (*InlineDispatcher)(nil)

// NewInlineDispatcher creates an InlineDispatcher.
func NewInlineDispatcher(uploader *ResultUploader, log *slog.Logger) *InlineDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &InlineDispatcher{
		uploader: uploader,
		timeout:  DefaultUploadTimeout,
		logger:   log.With(slog.String("component", "inline_upload_dispatcher")),
	}
}

// Dispatch starts the upload and returns immediately. The upload outlives
// ctx's cancellation but not the dispatcher's timeout.
func (d *InlineDispatcher) Dispatch(ctx context.Context, taskID uuid.UUID) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.uploader.Upload(uploadCtx, taskID); err != nil {
			d.logger.Warn("background upload did not finish",
				slog.String("task_id", taskID.String()),
				slog.String("error", redact.Error(err)))
		}
	}()
	return nil
}

// Wait blocks until every dispatched upload has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
