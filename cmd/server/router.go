package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/nailart-api/internal/api"
	apiMiddleware "github.com/phrazzld/nailart-api/internal/api/middleware"
	"github.com/rs/cors"
)

// setupRouter creates the router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: app.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "Cache-Control",
			apiMiddleware.OperatorKeyHeader,
		},
		ExposedHeaders: []string{apiMiddleware.TraceIDHeader},
	}).Handler)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.logger)
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	streamHandler := api.NewStreamHandler(app.notifier, app.logger)
	adminHandler := api.NewAdminHandler(app.reaper, app.worker, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/tasks/submit", taskHandler.Submit)
			r.Post("/tasks/cancel", taskHandler.Cancel)
			r.Get("/tasks/history", taskHandler.History)
			r.Get("/tasks/{id}", taskHandler.Get)

			r.Get("/credits/balance", taskHandler.Balance)
		})

		// Streams report a missing identity as an event on the open stream.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.OptionalAuthenticate)

			r.Get("/tasks/status", streamHandler.Status)
			r.Get("/tasks/{id}/events", streamHandler.Events)
		})

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.OperatorKey(app.operatorKeys))

			r.Post("/tasks/cleanup", adminHandler.Cleanup)
			r.Get("/tasks/cleanup", adminHandler.CleanupStatus)
			r.Post("/tasks/process", adminHandler.Process)
			r.Get("/tasks/process", adminHandler.ProcessStatus)
		})
	})

	r.Get("/health", api.Health)

	return r
}
