package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/store"
)

// TaskService is the task surface the handlers depend on.
type TaskService interface {
	Submit(ctx context.Context, ownerID uuid.UUID, req domain.GenerationRequest) (*service.SubmitResult, error)
	Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error)
	History(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)
	Balance(ctx context.Context, ownerID uuid.UUID) (*store.CreditBalance, error)
}

// TaskHandler handles the owner-facing task endpoints.
type TaskHandler struct {
	tasks     TaskService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, log *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{
		tasks:     tasks,
		validator: validator.New(),
		logger:    log.With(slog.String("component", "task_handler")),
	}
}

// Submit handles POST /api/tasks/submit. It answers as soon as the task is
// recorded; generation happens in the background.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, MessageInvalidRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	result, err := h.tasks.Submit(r.Context(), userID, req.GenerationRequest())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitTaskResponse{
		Success:         true,
		TaskID:          result.TaskID,
		CreditsRequired: result.CreditsRequired,
		Status:          result.Status,
		Message:         "Task submitted successfully. Processing started immediately.",
	})
}

// Cancel handles POST /api/tasks/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req CancelTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, MessageInvalidRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}
	taskID := uuid.MustParse(req.TaskID)

	if _, err := h.tasks.Cancel(r.Context(), userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{
		Success: true,
		TaskID:  taskID,
		Message: "Task cancelled successfully",
	})
}

// History handles GET /api/tasks/history.
func (h *TaskHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	tasks, err := h.tasks.History(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskHistoryResponse{Success: true, Tasks: tasks})
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndTaskID(w, r, "id", h.logger)
	if !ok {
		return
	}

	t, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to fetch task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{Success: true, Task: t})
}

// Balance handles GET /api/credits/balance.
func (h *TaskHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	balance, err := h.tasks.Balance(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to fetch credits")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{
		Total:     balance.TotalCredits,
		Used:      balance.UsedCredits,
		Available: balance.Available(),
	})
}
