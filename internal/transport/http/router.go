package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"meowauth/internal/config"
	apierrors "meowauth/internal/errors"
	customMiddleware "meowauth/internal/middleware"
)

// RouterOptions carries what the router needs from the application
type RouterOptions struct {
	Guard     GuardStatusProvider
	Errors    *apierrors.ErrorHandler
	Logger    *slog.Logger
	Version   string
	RateLimit config.RateLimitConfig

	// OTel instruments requests when set.
	OTel *customMiddleware.OTelMiddleware
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the host's chi router.
// Middleware order: RequestID, RealIP, OTel, logger, recoverer, headers, rate limit.
func NewRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.Group(func(r chi.Router) {
		if opts.OTel != nil {
			r.Use(opts.OTel.Handler)
		}
		r.Use(customMiddleware.StructuredLogger(opts.Logger))
		r.Use(customMiddleware.Recoverer(opts.Errors))
		r.Use(customMiddleware.SecurityHeaders)
		if opts.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst, opts.Errors, opts.Logger).Handler)
		}

		health := NewHealthHandler(opts.Guard, opts.Errors, opts.Version)
		r.Get(config.HealthEndpoint, health.LivenessCheck)
		r.Get(config.HealthEndpoint+"/live", health.LivenessCheck)
		r.Get(config.HealthEndpoint+"/ready", health.ReadinessCheck)

		r.With(render.SetContentType(render.ContentTypeJSON)).
			Get(config.GuardStatusEndpoint, NewGuardHandler(opts.Guard, opts.Logger).Status)
	})

	// Scrapes stay outside the group so they are neither logged nor throttled.
	if opts.Metrics != nil {
		r.Handle(config.MetricsEndpoint, opts.Metrics)
	}

	r.NotFound(opts.Errors.NotFound)
	r.MethodNotAllowed(opts.Errors.MethodNotAllowed)

	return r
}
