package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/task"
)

// SubmitTaskRequest is the body of POST /api/tasks/submit. Omitted fields
// take their defaults.
type SubmitTaskRequest struct {
	Prompt       string `json:"prompt"        validate:"required,max=4000"`
	Size         string `json:"size"`
	Quality      string `json:"quality"`
	N            int    `json:"n"             validate:"gte=0"`
	OutputFormat string `json:"output_format"`
	SkinTone     string `json:"skinTone"`
}

// GenerationRequest converts the body to the domain's raw request.
func (r SubmitTaskRequest) GenerationRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Prompt:       r.Prompt,
		Size:         r.Size,
		Quality:      r.Quality,
		Count:        r.N,
		OutputFormat: r.OutputFormat,
		SkinTone:     r.SkinTone,
	}
}

// SubmitTaskResponse acknowledges a recorded task.
type SubmitTaskResponse struct {
	Success         bool              `json:"success"`
	TaskID          uuid.UUID         `json:"taskId"`
	CreditsRequired int               `json:"creditsRequired"`
	Status          domain.TaskStatus `json:"status"`
	Message         string            `json:"message"`
}

// CancelTaskRequest is the body of POST /api/tasks/cancel.
type CancelTaskRequest struct {
	TaskID string `json:"taskId" validate:"required,uuid"`
}

// CancelTaskResponse confirms a cancellation.
type CancelTaskResponse struct {
	Success bool      `json:"success"`
	TaskID  uuid.UUID `json:"taskId"`
	Message string    `json:"message"`
}

// TaskHistoryResponse lists the owner's recent tasks, newest first.
type TaskHistoryResponse struct {
	Success bool           `json:"success"`
	Tasks   []*domain.Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Success bool         `json:"success"`
	Task    *domain.Task `json:"task"`
}

// BalanceResponse reports the owner's credits.
type BalanceResponse struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

// CleanupResponse reports a reaper sweep.
type CleanupResponse struct {
	Success bool            `json:"success"`
	Cleaned task.ReapReport `json:"cleaned"`
	Message string          `json:"message"`
}

// ProcessResponse reports an on-demand worker run.
type ProcessResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Outcome *task.Outcome `json:"outcome,omitempty"`
}

// ServiceStatusResponse answers GET requests to the maintenance endpoints.
type ServiceStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InsufficientCreditsResponse is the 400 body for a credit shortfall.
type InsufficientCreditsResponse struct {
	Error     string `json:"error"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id,omitempty"`
}

// CancelRefusedResponse is the 400 body for a cancel on a finished task.
type CancelRefusedResponse struct {
	Error         string            `json:"error"`
	CurrentStatus domain.TaskStatus `json:"currentStatus"`
	TraceID       string            `json:"trace_id,omitempty"`
}
