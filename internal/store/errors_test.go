package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		duplicate   bool
		unavailable bool
	}{
		{name: "nil", err: nil},
		{name: "generic", err: errors.New("boom")},
		{name: "task not found", err: ErrTaskNotFound, notFound: true},
		{name: "wrapped completion not found", err: fmt.Errorf("find: %w", ErrCompletionNotFound), notFound: true},
		{name: "already submitted", err: ErrAlreadySubmitted, duplicate: true},
		{name: "already processed", err: fmt.Errorf("record: %w", ErrAlreadyProcessed), duplicate: true},
		{name: "unavailable", err: fmt.Errorf("%w: dial tcp", ErrUnavailable), unavailable: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.notFound, IsNotFoundError(tc.err))
			assert.Equal(t, tc.duplicate, IsDuplicateError(tc.err))
			assert.Equal(t, tc.unavailable, IsUnavailableError(tc.err))
		})
	}

	assert.False(t, errors.Is(ErrAlreadySubmitted, ErrAlreadyProcessed))
}

func TestStoreError(t *testing.T) {
	cause := errors.New("constraint")
	err := NewStoreError("task", "create", "insert failed", cause)
	assert.Equal(t, "create operation on task failed: insert failed: constraint", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewStoreError("task", "delete", "missing", nil)
	assert.Equal(t, "delete operation on task failed: missing", bare.Error())
}
