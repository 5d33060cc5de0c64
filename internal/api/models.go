package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/pipeline"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	TeamID      int64      `json:"team_id" validate:"required,gt=0"`
	SubjectID   int64      `json:"subject_id" validate:"required,gt=0"`
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// Validate checks the cross-field constraints.
func (r *CreateTaskRequest) Validate() error {
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidDateRange)
	}
	return nil
}

func (r *CreateTaskRequest) payload() pipeline.CreatePayload {
	return pipeline.CreatePayload{
		TeamID:      r.TeamID,
		SubjectID:   r.SubjectID,
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
	}
}

// OptionalTime distinguishes an absent date from an explicit null.
type OptionalTime struct {
	Set  bool
	Time *time.Time
}

// UnmarshalJSON implements json.Unmarshaler. It is also called for null.
func (o *OptionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	o.Time = nil
	if string(b) == "null" {
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Time = &t
	return nil
}

// UpdateTaskRequest is the body of PUT and PATCH /api/tasks/{id}. Absent
// fields are left untouched; a null date clears it.
type UpdateTaskRequest struct {
	Title       *string            `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string            `json:"description"`
	StartDate   OptionalTime       `json:"start_date"`
	EndDate     OptionalTime       `json:"end_date"`
	Status      *domain.TaskStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
}

// Patch converts the request into a domain.TaskPatch.
func (r *UpdateTaskRequest) Patch() domain.TaskPatch {
	p := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
	}
	if r.StartDate.Set {
		p.StartDate = r.StartDate.Time
		p.ClearStartDate = r.StartDate.Time == nil
	}
	if r.EndDate.Set {
		p.EndDate = r.EndDate.Time
		p.ClearEndDate = r.EndDate.Time == nil
	}
	return p
}

// SubmitTaskRequest is the body of POST /api/tasks/{id}/submit.
type SubmitTaskRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// QueuedResponse acknowledges a mutation accepted by the broker.
type QueuedResponse struct {
	Queued bool `json:"queued"`
}

// TaskResponse reports a mutation applied synchronously.
type TaskResponse struct {
	Message string       `json:"message"`
	Data    *domain.Task `json:"data,omitempty"`
}

// SubmitResponse reports a submission applied synchronously.
type SubmitResponse struct {
	Message          string             `json:"message"`
	Data             *domain.Completion `json:"data,omitempty"`
	AlreadySubmitted bool               `json:"already_submitted"`
}

// TaskListResponse is one page of GET /api/tasks.
type TaskListResponse struct {
	Tasks       []*domain.Task `json:"tasks"`
	Total       int            `json:"total"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
}

func newTaskListResponse(page *domain.TaskPage) TaskListResponse {
	tasks := page.Tasks
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	totalPages := 0
	if page.Limit > 0 {
		totalPages = (page.Total + page.Limit - 1) / page.Limit
	}
	return TaskListResponse{
		Tasks:       tasks,
		Total:       page.Total,
		CurrentPage: page.Page,
		TotalPages:  totalPages,
	}
}
