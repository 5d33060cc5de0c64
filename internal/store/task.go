package store

import (
	"context"

	"github.com/phrazzld/taskflow/internal/domain"
)

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create inserts a new task and assigns its ID and CreatedAt.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// Update overwrites the mutable fields of an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task. Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id int64) error

	// List returns one page of the tasks matching filter, newest first,
	// together with the total number of matching tasks.
	List(ctx context.Context, filter domain.TaskFilter) (*domain.TaskPage, error)
}

// CompletionStore defines the interface for completion persistence.
type CompletionStore interface {
	// Find returns the completion of taskID by userID.
	// Returns ErrCompletionNotFound if there is none.
	Find(ctx context.Context, taskID, userID int64) (*domain.Completion, error)

	// Create inserts a completion and assigns its ID.
	// Returns ErrAlreadySubmitted if the user already completed the task.
	Create(ctx context.Context, completion *domain.Completion) error

	// DeleteByTask removes every completion of the task and returns how many were removed.
	DeleteByTask(ctx context.Context, taskID int64) (int64, error)
}
