package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/phrazzld/taskflow/internal/api"
	apiMiddleware "github.com/phrazzld/taskflow/internal/api/middleware"
)

type routerDeps struct {
	tasks          *api.TaskHandler
	health         http.Handler
	hub            http.Handler
	logger         *slog.Logger
	allowedOrigins []string
}

// setupRouter creates the router with all routes and middleware.
func setupRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(d.logger))

	r.Get("/health", d.health.ServeHTTP)
	r.Get("/ws", d.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
			MaxAge:         300,
		}))
		r.Use(apiMiddleware.RequestLogger)
		r.Mount("/api/tasks", d.tasks.Routes())
	})

	return otelhttp.NewHandler(r, "taskflow.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
