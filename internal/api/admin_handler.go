package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/task"
)

// TaskSweeper fails stale tasks.
type TaskSweeper interface {
	Sweep(ctx context.Context) (task.ReapReport, error)
}

// TaskProcessor runs the next pending task to completion.
type TaskProcessor interface {
	ProcessNext(ctx context.Context) (task.Outcome, error)
}

// AdminHandler serves the operator maintenance triggers. Routes using it
// sit behind the operator key middleware.
type AdminHandler struct {
	sweeper   TaskSweeper
	processor TaskProcessor
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. processor may be nil on
// processes that do not run a worker, in which case the process trigger
// answers 503.
func NewAdminHandler(sweeper TaskSweeper, processor TaskProcessor, log *slog.Logger) *AdminHandler {
	if sweeper == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("sweeper cannot be nil for AdminHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		sweeper:   sweeper,
		processor: processor,
		logger:    log.With(slog.String("component", "admin_handler")),
	}
}

// Cleanup handles POST /api/tasks/cleanup.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to clean up tasks")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("cleanup triggered",
		slog.Int("pending", report.Pending),
		slog.Int("processing", report.Processing))

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{
		Success: true,
		Cleaned: report,
		Message: fmt.Sprintf("Cleaned up %d timeout tasks", report.Total),
	})
}

// CleanupStatus handles GET /api/tasks/cleanup.
func (h *AdminHandler) CleanupStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ServiceStatusResponse{
		Status:  "active",
		Message: "Task cleanup service is running",
	})
}

// Process handles POST /api/tasks/process. The task runs on the request's
// goroutine; the provider deadline bounds how long that takes.
func (h *AdminHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Task processor is not running")
		return
	}

	outcome, err := h.processor.ProcessNext(r.Context())
	if errors.Is(err, task.ErrNoPendingTask) {
		shared.RespondWithJSON(w, r, http.StatusOK, ProcessResponse{Success: true, Message: "No pending tasks"})
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ProcessResponse{
		Success: true,
		Message: fmt.Sprintf("Task %s finished as %s", outcome.TaskID, outcome.Status),
		Outcome: &outcome,
	})
}

// ProcessStatus handles GET /api/tasks/process.
func (h *AdminHandler) ProcessStatus(w http.ResponseWriter, r *http.Request) {
	message := "Task processor is running"
	if h.processor == nil {
		message = "Task processor is not running in this process"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ServiceStatusResponse{Status: "active", Message: message})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ServiceStatusResponse{Status: "ok", Message: "healthy"})
}
