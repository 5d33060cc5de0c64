package api

import (
	"log/slog"
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/taskflow/internal/api/shared"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// Pinger is satisfied by the store gateway and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionState is satisfied by the broker.
type ConnectionState interface {
	IsConnected() bool
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler reports dependency status. Only an unreachable database
// fails the check; a disconnected broker or cache reports "degraded".
type HealthHandler struct {
	db      Pinger
	cache   Pinger
	broker  ConnectionState
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler. cache and broker may be nil.
func NewHealthHandler(db Pinger, cache Pinger, broker ConnectionState) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, broker: broker, timeout: 2 * time.Second}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		logger.FromContext(ctx).Warn("health check failed", slog.String("dependency", "database"), slog.String("error", err.Error()))
		resp.Checks["database"] = "unavailable"
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "ok"
	}

	if h.broker != nil {
		if h.broker.IsConnected() {
			resp.Checks["broker"] = "ok"
		} else {
			resp.Checks["broker"] = "disconnected"
			degrade(&resp)
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			logger.FromContext(ctx).Warn("health check failed", slog.String("dependency", "cache"), slog.String("error", err.Error()))
			resp.Checks["cache"] = "unavailable"
			degrade(&resp)
		} else {
			resp.Checks["cache"] = "ok"
		}
	}

	shared.RespondWithJSON(w, r, status, resp)
}

func degrade(resp *HealthResponse) {
	if resp.Status == "ok" {
		resp.Status = "degraded"
	}
}
