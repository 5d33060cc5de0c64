package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/store"
)

// PostgresCompletionStore implements store.CompletionStore.
type PostgresCompletionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCompletionStore creates a completion store over a connection or transaction.
func NewPostgresCompletionStore(db store.DBTX, logger *slog.Logger) *PostgresCompletionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCompletionStore{
		db:     db,
		logger: logger.With(slog.String("component", "completion_store")),
	}
}

var _ store.CompletionStore = (*PostgresCompletionStore)(nil)

// Find implements store.CompletionStore.Find
func (s *PostgresCompletionStore) Find(ctx context.Context, taskID, userID int64) (*domain.Completion, error) {
	query := `
		SELECT id, task_id, user_id, completed_date
		FROM task_completions
		WHERE task_id = $1 AND user_id = $2
	`
	var c domain.Completion
	err := s.db.QueryRowContext(ctx, query, taskID, userID).Scan(&c.ID, &c.TaskID, &c.UserID, &c.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCompletionNotFound
		}
		return nil, MapError(err)
	}
	return &c, nil
}

// Create implements store.CompletionStore.Create
func (s *PostgresCompletionStore) Create(ctx context.Context, completion *domain.Completion) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := completion.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO task_completions (task_id, user_id, completed_date)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		completion.TaskID,
		completion.UserID,
		completion.CompletedAt,
	).Scan(&completion.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrAlreadySubmitted
		}
		if IsForeignKeyViolation(err) {
			return store.ErrTaskNotFound
		}
		log.Error("failed to create completion",
			slog.String("error", err.Error()),
			slog.Int64("task_id", completion.TaskID),
			slog.Int64("user_id", completion.UserID))
		return MapError(err)
	}
	return nil
}

// DeleteByTask implements store.CompletionStore.DeleteByTask
func (s *PostgresCompletionStore) DeleteByTask(ctx context.Context, taskID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_completions WHERE task_id = $1`, taskID)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}
