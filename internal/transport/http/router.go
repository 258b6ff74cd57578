package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "panelrecon/internal/errors"
	"panelrecon/internal/middleware"
)

// RouterConfig collects the router's collaborators. Only Reports is required.
type RouterConfig struct {
	Reports     ReportSource
	Runs        RunSource
	Metrics     http.Handler
	OTel        *middleware.OTel
	RateLimiter *middleware.RateLimiter
	TopN        int // default ?top for counts, zero means all
	Version     string
	Logger      *slog.Logger
}

// NewRouter builds the report server's route tree
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger)

	r := chi.NewRouter()
	// RequestID -> RealIP -> OTel -> Logger -> Recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.OTel != nil {
		r.Use(cfg.OTel.Handler)
	}
	r.Use(middleware.StructuredLogger(logger))
	r.Use(apierrors.RecoveryMiddleware(errorHandler))
	r.Use(middleware.SecurityHeaders)

	r.NotFound(errorHandler.NotFound)

	health := NewHealthHandler(cfg.Runs, cfg.Version, logger)
	r.Get("/healthz", health.HealthCheck)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/", NewReportHandler(cfg.Reports, logger, errorHandler).WithDefaultTop(cfg.TopN).Routes())
	})

	return r
}
