package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// System metrics
		r.Get("/metrics", s.handleMetrics)

		// Script endpoints
		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", s.handleListScripts)

			r.Route("/{name}", func(r chi.Router) {
				r.Post("/execute", s.handleExecuteScript)
				r.Post("/stop", s.handleStopScript)
				r.Get("/runs", s.handleListScriptRuns)
			})
		})

		// Run history and live runs
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/active", s.handleActiveRuns)
			r.Post("/prune", s.handlePruneRuns)
		})

		// Remote action endpoints
		r.Route("/actions", func(r chi.Router) {
			r.Get("/", s.handleListActions)
			r.Post("/{name}/call", s.handleCallAction)
		})

		// Shared state endpoints
		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetStateKey)
				r.Put("/", s.handleSetStateKey)
				r.Delete("/", s.handleDeleteStateKey)
			})
		})

		// System maintenance
		r.Post("/system/reset", s.handleSystemReset)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
