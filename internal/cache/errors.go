package cache

import "errors"

var (
	// ErrMiss is returned by a Backend when the key does not exist or expired.
	ErrMiss = errors.New("cache miss")

	// ErrEmptyPayload is returned when a listing page without tasks is stored.
	ErrEmptyPayload = errors.New("cache payload has no data")

	// ErrInvalidPayload is returned when a payload is not valid JSON.
	ErrInvalidPayload = errors.New("cache payload is not valid JSON")
)
