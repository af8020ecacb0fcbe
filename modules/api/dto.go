package api

import (
	"time"

	domain "github.com/example/taskflow/domain/task"
	"github.com/example/taskflow/modules/task"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ItemResponse wraps a single task.
type ItemResponse struct {
	Message string       `json:"message,omitempty"`
	Item    *domain.Task `json:"item"`
	Success bool         `json:"success"`
}

// ListResponse wraps a filtered task list.
type ListResponse struct {
	Items   []*domain.Task `json:"items"`
	Count   int            `json:"count"`
	Total   int64          `json:"total"`
	Success bool           `json:"success"`
}

// MessageResponse acknowledges an operation without a payload.
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// StatsResponse is the aggregate statistics envelope.
type StatsResponse struct {
	*task.Stats
	Success bool `json:"success"`
}

// InitResponse reports the result of an initialize call.
type InitResponse struct {
	Message string `json:"message"`
	*task.InitResult
	Success bool `json:"success"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
	Error     string    `json:"error,omitempty"`
}
