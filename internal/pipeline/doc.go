// Package pipeline moves task mutations through the broker.
//
// The Producer wraps a mutation in a Message and sends it to a work queue.
// The Dispatcher consumes the work queues in the worker process and hands
// each Message to the Applier, which performs the mutation in one store
// transaction together with a ledger entry for the message fingerprint,
// then invalidates the cache and notifies rooms. The Applier is also the
// synchronous fallback used by the API when a message cannot be enqueued.
//
// Delivery is at least once. Duplicates are absorbed by an in-memory
// Window of recent fingerprints and, past the window, by the ledger.
package pipeline
