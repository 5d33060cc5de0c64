package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		connectivity bool
		domain       bool
	}{
		{name: "unavailable", err: fmt.Errorf("begin: %w", store.ErrUnavailable), connectivity: true},
		{name: "validation", err: fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyTitle), domain: true},
		{name: "missing task", err: store.ErrTaskNotFound, domain: true},
		{name: "constraint", err: store.ErrInvalidEntity, domain: true},
		{name: "malformed", err: ErrMalformedMessage, domain: true},
		{name: "other", err: errors.New("deadlock detected")},
		{name: "canceled", err: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(OpCreateTask, tt.err)
			assert.Equal(t, tt.connectivity, IsConnectivityError(err))
			assert.Equal(t, tt.domain, IsDomainError(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Nil(t, classify(OpCreateTask, nil))
}

func TestFaultKeepsExistingTag(t *testing.T) {
	f := &Fault{Kind: FaultDomain, Op: OpSubmitTask, Err: store.ErrUnavailable}
	err := classify(OpCreateTask, fmt.Errorf("wrapped: %w", f))
	assert.True(t, IsDomainError(err))
	assert.False(t, IsConnectivityError(err))
	assert.Contains(t, f.Error(), "SUBMIT_TASK domain fault")
}
