package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/notify"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
)

// StatusStreamer runs a status stream session.
type StatusStreamer interface {
	Stream(ctx context.Context, ownerID, taskID uuid.UUID, sink notify.Sink) error
}

// StreamHandler serves task status as server-sent events.
type StreamHandler struct {
	notifier StatusStreamer
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(notifier StatusStreamer, log *slog.Logger) *StreamHandler {
	if notifier == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("notifier cannot be nil for StreamHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{
		notifier: notifier,
		logger:   log.With(slog.String("component", "stream_handler")),
	}
}

// Status handles GET /api/tasks/status?taskId=.
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// Events handles GET /api/tasks/{id}/events.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "id")
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, param string) {
	taskID, ok := requireTaskID(w, r, param, h.logger)
	if !ok {
		return
	}
	// A missing identity is reported in-band once the stream is open.
	ownerID, _ := shared.UserIDFromContext(r.Context())
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug("could not clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Error("streaming unsupported", slog.String("error", err.Error()))
		return
	}

	sink := &sseSink{w: w, rc: rc}
	err := h.notifier.Stream(r.Context(), ownerID, taskID, sink)
	switch {
	case err == nil, errors.Is(err, notify.ErrUnauthenticated), errors.Is(err, notify.ErrTaskNotFound):
		log.Debug("status stream closed", slog.String("task_id", taskID.String()))
	default:
		log.Error("status stream failed",
			slog.String("task_id", taskID.String()),
			slog.String("error", redact.Error(err)))
	}
}

// sseSink writes events as SSE data frames.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseSink) Send(ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.rc.Flush()
}
