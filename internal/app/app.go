package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"panelrecon/internal/config"
	"panelrecon/internal/infrastructure"
	"panelrecon/internal/middleware"
	"panelrecon/internal/operations"
	handlers "panelrecon/internal/transport/http"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics
	Manager       *operations.Manager
	Server        *http.Server
}

// Option configures an Application
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger uses logger instead of the process-wide logger built from
// the logging config
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewApplication creates a new application instance with dependency injection
func NewApplication(cfg *config.Config, mode operations.PipelineMode, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	registry, err := operations.NewPipelineRegistry(cfg, mode, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register pipeline steps: %w", err)
	}

	manager := operations.NewManager(registry, logger,
		operations.WithTracer(providers.Tracer),
		operations.WithMetrics(metrics),
	)

	return &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
		Manager:       manager,
	}, nil
}

// RunPipeline executes one comparison run
func (a *Application) RunPipeline(ctx context.Context) (*operations.RunState, error) {
	return a.Manager.Execute(ctx)
}

// Handler builds the report server's router
func (a *Application) Handler() (http.Handler, error) {
	otelMiddleware, err := middleware.NewOTel(a.OTelProviders.Tracer, a.OTelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}

	var limiter *middleware.RateLimiter
	if a.Config.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(a.Config.Server.RateLimitRPS, a.Config.Server.RateLimitBurst, a.Logger)
	}

	return handlers.NewRouter(handlers.RouterConfig{
		Reports:     a.Manager,
		Runs:        a.Manager,
		Metrics:     a.OTelProviders.PrometheusHTTP,
		OTel:        otelMiddleware,
		RateLimiter: limiter,
		TopN:        a.Config.Report.TopN,
		Version:     infrastructure.ServiceVersion,
		Logger:      a.Logger,
	}), nil
}

// Serve listens on the configured address until ctx is cancelled
func (a *Application) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.Server.Addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully
func (a *Application) ServeListener(ctx context.Context, ln net.Listener) error {
	handler, err := a.Handler()
	if err != nil {
		ln.Close()
		return err
	}

	a.Server = &http.Server{
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Serve(ln)
	}()

	a.Logger.InfoContext(ctx, "report server started", slog.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.Logger.InfoContext(ctx, "shutting down report server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Close flushes telemetry and closes the log file
func (a *Application) Close(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}
