package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/taskflow/internal/api"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type connState bool

func (c connState) IsConnected() bool { return bool(c) }

func TestHealthHandler(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name   string
		h      *api.HealthHandler
		status int
		body   string
	}{
		{
			name:   "all up",
			h:      api.NewHealthHandler(pinger{}, pinger{}, connState(true)),
			status: http.StatusOK,
			body:   `{"status":"ok","checks":{"database":"ok","broker":"ok","cache":"ok"}}`,
		},
		{
			name:   "broker down",
			h:      api.NewHealthHandler(pinger{}, pinger{}, connState(false)),
			status: http.StatusOK,
			body:   `{"status":"degraded","checks":{"database":"ok","broker":"disconnected","cache":"ok"}}`,
		},
		{
			name:   "cache down",
			h:      api.NewHealthHandler(pinger{}, pinger{err: down}, connState(true)),
			status: http.StatusOK,
			body:   `{"status":"degraded","checks":{"database":"ok","broker":"ok","cache":"unavailable"}}`,
		},
		{
			name:   "database down",
			h:      api.NewHealthHandler(pinger{err: down}, pinger{}, connState(false)),
			status: http.StatusServiceUnavailable,
			body:   `{"status":"unavailable","checks":{"database":"unavailable","broker":"disconnected","cache":"ok"}}`,
		},
		{
			name:   "optional dependencies absent",
			h:      api.NewHealthHandler(pinger{}, nil, nil),
			status: http.StatusOK,
			body:   `{"status":"ok","checks":{"database":"ok"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
