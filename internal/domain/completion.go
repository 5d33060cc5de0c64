package domain

import (
	"fmt"
	"time"
)

// Completion records that a user completed a task.
// There is at most one Completion per (TaskID, UserID).
type Completion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UserID      int64     `json:"user_id"`
	CompletedAt time.Time `json:"completed_date"`
}

// NewCompletion creates a completion stamped with the current time.
func NewCompletion(taskID, userID int64) (*Completion, error) {
	c := &Completion{
		TaskID:      taskID,
		UserID:      userID,
		CompletedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that both references are set.
func (c *Completion) Validate() error {
	if c.TaskID <= 0 {
		return fmt.Errorf("%w: task: %w", ErrValidation, ErrInvalidID)
	}
	if c.UserID <= 0 {
		return fmt.Errorf("%w: user: %w", ErrValidation, ErrInvalidID)
	}
	return nil
}
