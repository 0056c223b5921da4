/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    Request-scoped slog logger + access log (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Cancels the request context after RequestTimeout
  5. CORS:       Cross-origin requests for the wallet frontend

ROUTE GROUPS:
  /api/health                             Health check
  /api/occurrences                        Multi-scope range query
  /api/scenarios                          Demo scenarios
  /api/scopes/{scopeID}/templates/*       Template management, exclusions, exceptions
  /api/scopes/{scopeID}/occurrences/*     Range query, exception by occurrence id
  /api/scopes/{scopeID}/scenarios/load    Load a demo scenario into a scope

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/recurrence-engine/logging"
)

// RouterConfig holds the middleware settings.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// CORS for frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/occurrences", h.ListOccurrencesForScopes)
		r.Get("/scenarios", h.ListScenarios)

		r.Route("/scopes/{scopeID}", func(r chi.Router) {
			r.Post("/scenarios/load", h.LoadScenario)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", h.ListTemplates)
				r.Post("/", h.CreateTemplate)
				r.Get("/export", h.ExportTemplates)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetTemplate)
					r.Put("/", h.UpdateTemplate)
					r.Delete("/", h.DeleteTemplate)
					r.Post("/exclusions", h.AddExclusion)
					r.Post("/exceptions", h.CreateException)
				})
			})

			r.Route("/occurrences", func(r chi.Router) {
				r.Get("/", h.ListOccurrences)
				r.Post("/{occurrenceID}/exception", h.CreateOccurrenceException)
			})
		})
	})

	return r
}
