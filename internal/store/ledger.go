package store

import (
	"context"
	"time"
)

// LedgerStore records the fingerprints of messages whose effects were applied.
// A fingerprint is recorded in the same transaction as the mutation it belongs to,
// so a redelivered message either finds its fingerprint or finds no effects.
type LedgerStore interface {
	// Record stores fingerprint. Returns ErrAlreadyProcessed if it is already present.
	Record(ctx context.Context, fingerprint, operation string) error

	// Seen reports whether fingerprint is present.
	Seen(ctx context.Context, fingerprint string) (bool, error)

	// PruneBefore deletes fingerprints recorded before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
