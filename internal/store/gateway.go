package store

import "context"

// Gateway is the single entry point to persistence used by the pipeline.
// Stores obtained from a Gateway handed to an InTx callback share that transaction.
type Gateway interface {
	Tasks() TaskStore
	Completions() CompletionStore
	Ledger() LedgerStore

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Gateway) error) error

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
