// Package store defines the persistence interfaces of the pipeline: tasks,
// completions and the processed-message ledger, grouped behind Gateway.
// Implementations live under internal/platform.
package store
