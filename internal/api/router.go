// Package api exposes the read-only local HTTP surface that render-layer
// consumers poll: conversation views, contacts, health and metrics.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/api/middleware"
	"github.com/peykchat/peyk/internal/handlers"
	"github.com/peykchat/peyk/internal/store"
	"github.com/peykchat/peyk/internal/view"
)

// NewRouter creates and configures the HTTP router for the session user.
func NewRouter(logger zerolog.Logger, st store.EventStore, views *view.Builder, self string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the listener is loopback-only by default, but local web
	// frontends load from file:// or dev servers on other ports.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, views, self)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", h.Health)
	r.Get("/contacts", h.Contacts)
	r.Get("/conversations/{id}/messages", h.Conversation)

	return r
}
