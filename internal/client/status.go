package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/notify"
)

// DefaultPollInterval matches the web client's history polling.
const DefaultPollInterval = 5 * time.Second

// Update is one observation of a task's status.
type Update struct {
	TaskID   uuid.UUID
	Status   domain.TaskStatus
	Progress int
	Message  string
	Result   *domain.Result
	Error    string
}

// Terminal reports whether no further updates will follow.
func (u Update) Terminal() bool {
	return u.Status.IsTerminal()
}

func updateFromTask(t *domain.Task) Update {
	u := Update{
		TaskID:   t.ID,
		Status:   t.Status,
		Progress: t.Status.Progress(),
		Message:  t.Status.Message(),
		Result:   t.Result,
	}
	if t.ErrorMessage != nil {
		u.Error = *t.ErrorMessage
	}
	return u
}

// StatusSource delivers a task's status changes to fn until the task is
// terminal, ctx ends, or the source fails.
type StatusSource interface {
	OnUpdate(ctx context.Context, fn func(Update)) error
}

// PushSource follows a task over the server-sent event stream.
type PushSource struct {
	client *Client
	taskID uuid.UUID
}

// Push returns a PushSource for taskID.
func (c *Client) Push(taskID uuid.UUID) *PushSource {
	return &PushSource{client: c, taskID: taskID}
}

// OnUpdate implements StatusSource. It returns nil once a terminal update
// was delivered and ErrStreamEnded when the stream closes early.
func (s *PushSource) OnUpdate(ctx context.Context, fn func(Update)) error {
	req, err := s.client.newRequest(ctx, http.MethodGet, statusPath(s.taskID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open status stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev notify.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			return fmt.Errorf("malformed status event: %w", err)
		}

		switch ev.Type {
		case notify.EventConnected:
			continue
		case notify.EventError:
			if ev.Message == notify.MessageTaskNotFound {
				return fmt.Errorf("%w: %s", ErrNotFound, ev.Message)
			}
			return fmt.Errorf("status stream error: %s", ev.Message)
		}

		// A terminal status snapshot is followed by the event carrying the
		// result or error.
		if !ev.IsTerminal() && ev.Status.IsTerminal() {
			continue
		}
		fn(s.update(ev))
		if ev.IsTerminal() {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("status stream read failed: %w", err)
	}
	return ErrStreamEnded
}

func (s *PushSource) update(ev notify.Event) Update {
	u := Update{
		TaskID:  s.taskID,
		Status:  ev.Status,
		Message: ev.Message,
		Result:  ev.Result,
		Error:   ev.Error,
	}
	switch ev.Type {
	case notify.EventTaskCompleted:
		u.Status = domain.TaskStatusCompleted
	case notify.EventTaskFailed:
		u.Status = domain.TaskStatusFailed
	case notify.EventTaskCancelled:
		u.Status = domain.TaskStatusCancelled
	}
	if ev.Progress != nil {
		u.Progress = *ev.Progress
	} else {
		u.Progress = u.Status.Progress()
	}
	return u
}

// PollingSource reads the task from history on a fixed interval, emitting
// an update whenever its status changes.
type PollingSource struct {
	client   *Client
	taskID   uuid.UUID
	interval time.Duration
}

// Poll returns a PollingSource for taskID. A non-positive interval uses
// DefaultPollInterval.
func (c *Client) Poll(taskID uuid.UUID, interval time.Duration) *PollingSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingSource{client: c, taskID: taskID, interval: interval}
}

// OnUpdate implements StatusSource. Failed polls are logged and retried on
// the next tick.
func (s *PollingSource) OnUpdate(ctx context.Context, fn func(Update)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last domain.TaskStatus
	for {
		done, err := s.check(ctx, &last, fn)
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *PollingSource) check(ctx context.Context, last *domain.TaskStatus, fn func(Update)) (bool, error) {
	tasks, err := s.client.History(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return true, err
		}
		s.client.logger.Warn("task poll failed",
			slog.String("task_id", s.taskID.String()),
			slog.String("error", err.Error()))
		return false, nil
	}

	for _, t := range tasks {
		if t.ID != s.taskID {
			continue
		}
		if t.Status != *last {
			*last = t.Status
			u := updateFromTask(t)
			fn(u)
			return u.Terminal(), nil
		}
		return false, nil
	}
	return true, fmt.Errorf("%w: task %s is not in history", ErrNotFound, s.taskID)
}

// FallbackSource runs Primary and switches to Fallback if Primary fails
// before the task finishes.
type FallbackSource struct {
	Primary  StatusSource
	Fallback StatusSource
	Logger   *slog.Logger
}

// Watch returns the push-first, poll-on-failure source the web client uses.
func (c *Client) Watch(taskID uuid.UUID) *FallbackSource {
	return &FallbackSource{
		Primary:  c.Push(taskID),
		Fallback: c.Poll(taskID, DefaultPollInterval),
		Logger:   c.logger,
	}
}

// OnUpdate implements StatusSource. After a switch, the fallback's report
// of the status Primary already delivered is dropped.
func (s *FallbackSource) OnUpdate(ctx context.Context, fn func(Update)) error {
	finished := false
	var last domain.TaskStatus
	err := s.Primary.OnUpdate(ctx, func(u Update) {
		if u.Terminal() {
			finished = true
		}
		last = u.Status
		fn(u)
	})
	if err == nil || finished || ctx.Err() != nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return err
	}

	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("status stream failed, falling back to polling", slog.String("error", err.Error()))
	return s.Fallback.OnUpdate(ctx, func(u Update) {
		if u.Status == last {
			return
		}
		last = u.Status
		fn(u)
	})
}
