package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/store"
	"github.com/phrazzld/nailart-api/internal/task"
)

// Stream outcomes reported to the transport after the error event is sent.
var (
	ErrUnauthenticated = errors.New("stream requires an authenticated owner")
	ErrTaskNotFound    = errors.New("task not found or not owned")
)

// Default stream timings.
const (
	DefaultPollInterval       = 2 * time.Second
	DefaultMaxLifetime        = 10 * time.Minute
	DefaultTerminalCloseDelay = time.Second
	DefaultSettleCloseDelay   = 2 * time.Second
)

// TaskReader is the part of the task store a stream needs.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// Sweeper fails stale tasks before a stream starts.
type Sweeper interface {
	Sweep(ctx context.Context) (task.ReapReport, error)
}

// Config holds stream timings.
type Config struct {
	PollInterval time.Duration
	MaxLifetime  time.Duration
	// TerminalCloseDelay is how long the stream stays open after reporting a
	// task that was already terminal when the stream started.
	TerminalCloseDelay time.Duration
	// SettleCloseDelay is the same for a task that finished while watched.
	SettleCloseDelay time.Duration
}

// DefaultConfig returns the standard stream timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:       DefaultPollInterval,
		MaxLifetime:        DefaultMaxLifetime,
		TerminalCloseDelay: DefaultTerminalCloseDelay,
		SettleCloseDelay:   DefaultSettleCloseDelay,
	}
}

// ConfigFrom converts the notifier configuration section.
func ConfigFrom(cfg config.NotifierConfig) Config {
	return Config{
		PollInterval:       cfg.PollInterval,
		MaxLifetime:        cfg.MaxLifetime,
		TerminalCloseDelay: cfg.TerminalCloseDelay,
		SettleCloseDelay:   cfg.SettleCloseDelay,
	}
}

// Notifier runs status stream sessions.
type Notifier struct {
	tasks   TaskReader
	sweeper Sweeper
	cfg     Config
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. sweeper may be nil.
func NewNotifier(tasks TaskReader, sweeper Sweeper, cfg Config, log *slog.Logger) *Notifier {
	if tasks == nil {
		panic("task reader cannot be nil")
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = def.MaxLifetime
	}
	if cfg.TerminalCloseDelay < 0 {
		cfg.TerminalCloseDelay = 0
	}
	if cfg.SettleCloseDelay < 0 {
		cfg.SettleCloseDelay = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		tasks:   tasks,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "status_notifier")),
	}
}

// Stream reports taskID's status to sink on behalf of ownerID. It returns
// when the task is terminal and the close delay has passed, when ctx is
// done, when the sink stops accepting events, or when the session's
// lifetime expires. Authentication and ownership failures are reported on
// the sink as an error event and returned.
func (n *Notifier) Stream(ctx context.Context, ownerID, taskID uuid.UUID, sink Sink) error {
	out := NewSafeSink(sink)
	defer out.Close()

	log := logger.FromContextOrDefault(ctx, n.logger).With(
		slog.String("task_id", taskID.String()),
		slog.String("owner_id", ownerID.String()))

	ctx, cancel := context.WithTimeout(ctx, n.cfg.MaxLifetime)
	defer cancel()

	if n.sweeper != nil {
		if _, err := n.sweeper.Sweep(ctx); err != nil {
			log.Warn("stale task sweep failed", slog.String("error", redact.Error(err)))
		}
	}

	if ownerID == uuid.Nil {
		out.Send(errorEvent(MessageAuthRequired))
		return ErrUnauthenticated
	}

	current, err := n.tasks.GetByID(ctx, taskID)
	if err != nil || !current.OwnedBy(ownerID) {
		if err != nil && !errors.Is(err, store.ErrTaskNotFound) {
			log.Error("failed to load task for stream", slog.String("error", redact.Error(err)))
			out.Send(errorEvent(MessageMonitorFailed))
			return err
		}
		out.Send(errorEvent(MessageTaskNotFound))
		return ErrTaskNotFound
	}

	out.Send(connectedEvent(taskID))
	out.Send(statusEvent(current, false))
	if current.Status.IsTerminal() {
		out.Send(terminalEvent(current))
		n.linger(ctx, out, n.cfg.TerminalCloseDelay)
		return nil
	}

	log.Debug("watching task", slog.String("status", string(current.Status)))
	return n.poll(ctx, taskID, out, log)
}

func (n *Notifier) poll(ctx context.Context, taskID uuid.UUID, out *SafeSink, log *slog.Logger) error {
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Info("status stream reached its lifetime")
			}
			return nil
		case <-ticker.C:
		}
		if out.Closed() {
			log.Debug("status stream transport closed")
			return nil
		}

		current, err := n.tasks.GetByID(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("status poll failed", slog.String("error", redact.Error(err)))
			continue
		}

		out.Send(statusEvent(current, true))
		if current.Status.IsTerminal() {
			out.Send(terminalEvent(current))
			n.linger(ctx, out, n.cfg.SettleCloseDelay)
			return nil
		}
	}
}

// linger keeps the transport open for d so the client can read the final
// events before the close.
func (n *Notifier) linger(ctx context.Context, out *SafeSink, d time.Duration) {
	if d <= 0 || out.Closed() {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
