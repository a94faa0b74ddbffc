package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrapcommand/escalation-service/internal/middleware"
	"github.com/wrapcommand/escalation-service/pkg/logger"
)

// RouterConfig carries everything the HTTP routes need.
type RouterConfig struct {
	Health      *HealthHandler
	Events      *EventHandler
	Escalations *EscalationHandler
	Stream      *StreamHandler

	JWTSecret              string
	RateLimitRequests      int
	RateLimitWindow        time.Duration
	WriteRateLimitRequests int
	Logger                 *logger.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/events", cfg.Events.List)
			r.With(
				middleware.RequireScope(middleware.ScopeEventsWrite),
				middleware.UserRateLimit(cfg.WriteRateLimitRequests, cfg.RateLimitWindow),
			).Post("/events", cfg.Events.Append)

			r.Get("/escalation", cfg.Escalations.Status)
			r.Get("/escalation/stream", cfg.Stream.Stream)
		})

		r.Get("/escalations", cfg.Escalations.Batch)
	})

	return r
}
