package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/store"
)

// Gateway implements store.Gateway over a *sql.DB. Inside InTx the stores it
// hands out are bound to the transaction.
type Gateway struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger

	tasks       *PostgresTaskStore
	completions *PostgresCompletionStore
	ledger      *PostgresLedgerStore
}

var _ store.Gateway = (*Gateway)(nil)

// NewGateway creates a Gateway over db.
func NewGateway(db *sql.DB, logger *slog.Logger) *Gateway {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return newGateway(db, nil, db, logger)
}

func newGateway(db *sql.DB, tx *sql.Tx, q store.DBTX, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:          db,
		tx:          tx,
		logger:      logger,
		tasks:       NewPostgresTaskStore(q, logger),
		completions: NewPostgresCompletionStore(q, logger),
		ledger:      NewPostgresLedgerStore(q, logger),
	}
}

// Tasks implements store.Gateway.
func (g *Gateway) Tasks() store.TaskStore { return g.tasks }

// Completions implements store.Gateway.
func (g *Gateway) Completions() store.CompletionStore { return g.completions }

// Ledger implements store.Gateway.
func (g *Gateway) Ledger() store.LedgerStore { return g.ledger }

// InTx implements store.Gateway. Nested calls join the outer transaction.
func (g *Gateway) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Gateway) error) error {
	if g.tx != nil {
		return fn(ctx, g)
	}
	err := store.RunInTransaction(ctx, g.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, newGateway(g.db, tx, tx, g.logger))
	})
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Ping implements store.Gateway.
func (g *Gateway) Ping(ctx context.Context) error {
	return MapError(g.db.PingContext(ctx))
}
