// Package redis relays task wake-ups between processes over Redis pub/sub.
//
// The API process publishes each submitted task; worker processes subscribe
// and hand the event to their local task runner. Messages are best effort:
// a worker that misses one still finds the task on its next sweep.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/events"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "nailart:tasks"

// PublishTimeout bounds one publish so a slow or unreachable Redis cannot
// hold up task submission.
const PublishTimeout = 2 * time.Second

// ErrNotConfigured is returned by NewClient when no URL is set.
var ErrNotConfigured = errors.New("redis is not configured")

// NewClient connects to the configured Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

func channelName(channel string) string {
	if channel == "" {
		return DefaultChannel
	}
	return channel
}

type publishAPI interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Publisher forwards task events to Redis. It is registered as a handler on
// the local event emitter.
type Publisher struct {
	rdb     publishAPI
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// NewPublisher creates a Publisher on channel.
func NewPublisher(rdb *goredis.Client, channel string, log *slog.Logger) *Publisher {
	return newPublisher(rdb, channel, log)
}

func newPublisher(rdb publishAPI, channel string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		rdb:     rdb,
		channel: channelName(channel),
		timeout: PublishTimeout,
		logger:  log.With(slog.String("component", "redis_publisher")),
	}
}

func (p *Publisher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task event: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	receivers, err := p.rdb.Publish(pubCtx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}
	logger.FromContextOrDefault(ctx, p.logger).Debug("task event published",
		slog.String("task_id", event.TaskID.String()),
		slog.Int64("receivers", receivers))
	return nil
}

// Subscriber delivers task events published by other processes.
type Subscriber struct {
	rdb     *goredis.Client
	channel string
	handler events.EventHandler
	logger  *slog.Logger
}

// NewSubscriber creates a Subscriber that hands events to handler.
func NewSubscriber(rdb *goredis.Client, channel string, handler events.EventHandler, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		rdb:     rdb,
		channel: channelName(channel),
		handler: handler,
		logger:  log.With(slog.String("component", "redis_subscriber")),
	}
}

// Run subscribes and delivers events until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to task events", slog.String("channel", s.channel))

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("task event subscription failed: %w", err)
		}
		s.deliver(ctx, msg.Payload)
	}
}

func (s *Subscriber) deliver(ctx context.Context, payload string) {
	event, err := events.Unmarshal([]byte(payload))
	if err != nil {
		s.logger.Warn("dropping malformed task event", slog.String("error", err.Error()))
		return
	}
	if err := s.handler.HandleEvent(ctx, event); err != nil {
		s.logger.Warn("task event handler failed",
			slog.String("task_id", event.TaskID.String()),
			slog.String("error", err.Error()))
	}
}
