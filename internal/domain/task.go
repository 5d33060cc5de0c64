package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// MaxTitleLength bounds Task.Title, matching the title column width.
const MaxTitleLength = 255

// Task is a unit of work owned by a (team, subject) pair.
// ID is assigned by the store and never changes afterwards.
type Task struct {
	ID          int64      `json:"task_id"`
	TeamID      int64      `json:"team_id"`
	SubjectID   int64      `json:"subject_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewTask creates a pending task for the given team and subject.
// Returns an error if validation fails.
func NewTask(teamID, subjectID int64, title, description string, start, end *time.Time) (*Task, error) {
	task := &Task{
		TeamID:      teamID,
		SubjectID:   subjectID,
		Title:       strings.TrimSpace(title),
		Description: description,
		StartDate:   start,
		EndDate:     end,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error wrapping ErrValidation if any field fails validation.
func (t *Task) Validate() error {
	if t.TeamID <= 0 {
		return fmt.Errorf("%w: team: %w", ErrValidation, ErrInvalidID)
	}
	if t.SubjectID <= 0 {
		return fmt.Errorf("%w: subject: %w", ErrValidation, ErrInvalidID)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTitle)
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTitleTooLong)
	}
	if !IsValidTaskStatus(t.Status) {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidTaskStatus, t.Status)
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidDateRange)
	}
	return nil
}

// Room returns the (team, subject) partition the task belongs to.
func (t *Task) Room() (teamID, subjectID int64) {
	return t.TeamID, t.SubjectID
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskPatch carries a partial update. Nil fields are left untouched.
// ClearStartDate/ClearEndDate explicitly reset a date to null.
type TaskPatch struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	StartDate      *time.Time  `json:"start_date,omitempty"`
	EndDate        *time.Time  `json:"end_date,omitempty"`
	ClearStartDate bool        `json:"clear_start_date,omitempty"`
	ClearEndDate   bool        `json:"clear_end_date,omitempty"`
	Status         *TaskStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.StartDate == nil && p.EndDate == nil &&
		!p.ClearStartDate && !p.ClearEndDate && p.Status == nil
}

// Apply copies the present fields of the patch onto t and validates the result.
// t is left unchanged when the patched task would be invalid.
func (p TaskPatch) Apply(t *Task) error {
	next := *t
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.ClearStartDate {
		next.StartDate = nil
	} else if p.StartDate != nil {
		start := *p.StartDate
		next.StartDate = &start
	}
	if p.ClearEndDate {
		next.EndDate = nil
	} else if p.EndDate != nil {
		end := *p.EndDate
		next.EndDate = &end
	}
	if p.Status != nil {
		next.Status = *p.Status
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*t = next
	return nil
}
