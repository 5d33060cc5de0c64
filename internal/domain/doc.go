// Package domain contains the task entities shared by every layer of the
// pipeline: tasks, their partial updates, completions and listing filters.
// It has no dependencies on storage, transport or caching.
package domain
