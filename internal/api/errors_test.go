package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/pipeline"
	"github.com/phrazzld/taskflow/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "validation",
			err:     fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyTitle),
			status:  http.StatusBadRequest,
			message: "Task title is required",
		},
		{
			name:    "domain fault around missing task",
			err:     &pipeline.Fault{Kind: pipeline.FaultDomain, Op: pipeline.OpSubmitTask, Err: store.ErrTaskNotFound},
			status:  http.StatusNotFound,
			message: "Task not found",
		},
		{
			name:    "connectivity fault",
			err:     &pipeline.Fault{Kind: pipeline.FaultConnectivity, Op: pipeline.OpCreateTask, Err: store.ErrUnavailable},
			status:  http.StatusServiceUnavailable,
			message: "Service temporarily unavailable",
		},
		{
			name:    "bare unavailable",
			err:     fmt.Errorf("list tasks: %w", store.ErrUnavailable),
			status:  http.StatusServiceUnavailable,
			message: "Service temporarily unavailable",
		},
		{
			name:    "unknown",
			err:     errors.New("SELECT failed"),
			status:  http.StatusInternalServerError,
			message: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.message, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestJSONFieldName(t *testing.T) {
	for in, want := range map[string]string{
		"SubjectID": "subject_id",
		"TeamID":    "team_id",
		"Title":     "title",
		"StartDate": "start_date",
	} {
		assert.Equal(t, want, jsonFieldName(in))
	}
}
