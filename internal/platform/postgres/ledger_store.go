package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/taskflow/internal/store"
)

// PostgresLedgerStore implements store.LedgerStore on the processed_messages table.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a ledger store over a connection or transaction.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// Record implements store.LedgerStore.Record
func (s *PostgresLedgerStore) Record(ctx context.Context, fingerprint, operation string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_messages (fingerprint, operation, processed_at) VALUES ($1, $2, $3)`,
		fingerprint, operation, time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrAlreadyProcessed
		}
		return MapError(err)
	}
	return nil
}

// Seen implements store.LedgerStore.Seen
func (s *PostgresLedgerStore) Seen(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE fingerprint = $1)`,
		fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// PruneBefore implements store.LedgerStore.PruneBefore
func (s *PostgresLedgerStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	if n > 0 {
		s.logger.Debug("pruned processed message ledger", slog.Int64("removed", n))
	}
	return n, nil
}
