package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/store"
)

// Reaper timeouts.
const (
	DefaultPendingTimeout    = 10 * time.Minute
	DefaultProcessingTimeout = 30 * time.Minute
)

// ReapReport counts the tasks failed by one sweep.
type ReapReport struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Total      int `json:"total"`
}

// Reaper fails tasks that have sat in a non-terminal state too long.
// Sweeps are idempotent and safe to run from several places at once.
type Reaper struct {
	store             store.TaskStore
	pendingTimeout    time.Duration
	processingTimeout time.Duration
	timeFunc          func() time.Time
	logger            *slog.Logger
}

// NewReaper creates a Reaper. Non-positive timeouts take the defaults.
func NewReaper(taskStore store.TaskStore, pendingTimeout, processingTimeout time.Duration, log *slog.Logger) *Reaper {
	if taskStore == nil {
		panic("task store cannot be nil")
	}
	if pendingTimeout <= 0 {
		pendingTimeout = DefaultPendingTimeout
	}
	if processingTimeout <= 0 {
		processingTimeout = DefaultProcessingTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		store:             taskStore,
		pendingTimeout:    pendingTimeout,
		processingTimeout: processingTimeout,
		timeFunc:          time.Now,
		logger:            log.With(slog.String("component", "task_reaper")),
	}
}

// Sweep fails stale pending and processing tasks.
func (r *Reaper) Sweep(ctx context.Context) (ReapReport, error) {
	now := r.timeFunc()
	var report ReapReport

	pending, err := r.store.FailStale(ctx, domain.TaskStatusPending, now.Add(-r.pendingTimeout),
		domain.StaleTaskMessage(domain.TaskStatusPending, r.pendingTimeout))
	if err != nil {
		return report, fmt.Errorf("failed to reap pending tasks: %w", err)
	}
	report.Pending = pending

	processing, err := r.store.FailStale(ctx, domain.TaskStatusProcessing, now.Add(-r.processingTimeout),
		domain.StaleTaskMessage(domain.TaskStatusProcessing, r.processingTimeout))
	if err != nil {
		report.Total = report.Pending
		return report, fmt.Errorf("failed to reap processing tasks: %w", err)
	}
	report.Processing = processing
	report.Total = pending + processing

	if report.Total > 0 {
		logger.FromContextOrDefault(ctx, r.logger).Info("reaped stale tasks",
			slog.Int("pending", report.Pending),
			slog.Int("processing", report.Processing))
	}
	return report, nil
}
