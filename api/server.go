/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/transactions/*    Transaction lifecycle, roster, recurrence
  /api/merge-requests/*  Placeholder-to-user links
  /api/users/*           Account directory
  /metrics               Prometheus scrape endpoint
  /healthz               Liveness probe

SECURITY NOTE:
  No authentication middleware. The acting user comes from the X-User-ID
  header, expected to be set by an upstream gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/respond", h.RespondToInvitation)
			r.Post("/{id}/leave", h.LeaveTransaction)
			r.Post("/{id}/exclusions", h.ExcludeOccurrence)
			r.Get("/{id}/occurrences", h.ListOccurrences)
			r.Get("/{id}/installments", h.ListInstallments)
		})

		// Merge request routes
		r.Route("/merge-requests", func(r chi.Router) {
			r.Post("/", h.CreateMergeRequest)
			r.Get("/{id}", h.GetMergeRequest)
			r.Post("/{id}/respond", h.RespondToMerge)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HealthCheck)

	return r
}
