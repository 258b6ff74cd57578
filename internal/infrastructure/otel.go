package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"panelrecon/internal/config"
	"panelrecon/pkg/contracts"
)

const (
	ServiceName    = "panelrecon"
	ServiceVersion = contracts.Version
	MeterName      = "panelrecon"
)

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel wires tracing and metrics according to cfg. Disabled
// exporters fall back to no-op providers so callers never branch.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	providers := &OTelProviders{
		Logger: logger,
		Tracer: otel.Tracer(MeterName),
		Meter:  noop.NewMeterProvider().Meter(MeterName),
	}

	if err := initializeTracing(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := initializeMetrics(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter),
		slog.String("environment", cfg.Environment))

	return providers, nil
}

func initializeTracing(cfg config.TelemetryConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(os.Stderr),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
		otel.SetTracerProvider(tp)
	case "none", "":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
	return nil
}

func initializeMetrics(cfg config.TelemetryConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))
		otel.SetMeterProvider(mp)
	case "none", "":
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}
	return nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}
	return nil
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// PipelineMetrics holds the instruments recorded by a pipeline run
type PipelineMetrics struct {
	StepsTotal      metric.Int64Counter
	StepDuration    metric.Float64Histogram
	StepErrors      metric.Int64Counter
	PanelRows       metric.Int64Gauge
	AnomaliesTotal  metric.Int64Counter
	DiagnosticTotal metric.Int64Counter
	OverlapTotal    metric.Int64Gauge
}

// NewPipelineMetrics creates the pipeline instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &PipelineMetrics{}
	var err error

	if m.StepsTotal, err = meter.Int64Counter("pipeline_steps_total",
		metric.WithDescription("Total number of pipeline steps executed")); err != nil {
		return nil, err
	}
	if m.StepDuration, err = meter.Float64Histogram("pipeline_step_duration_seconds",
		metric.WithDescription("Pipeline step duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.StepErrors, err = meter.Int64Counter("pipeline_step_errors_total",
		metric.WithDescription("Total number of failed pipeline steps")); err != nil {
		return nil, err
	}
	if m.PanelRows, err = meter.Int64Gauge("panel_rows",
		metric.WithDescription("Rows in the most recent feature panel")); err != nil {
		return nil, err
	}
	if m.AnomaliesTotal, err = meter.Int64Counter("anomalies_reconciled_total",
		metric.WithDescription("Canonical anomalies produced per detector")); err != nil {
		return nil, err
	}
	if m.DiagnosticTotal, err = meter.Int64Counter("detector_diagnostics_total",
		metric.WithDescription("Diagnostics raised while loading or reconciling detector output")); err != nil {
		return nil, err
	}
	if m.OverlapTotal, err = meter.Int64Gauge("anomaly_overlap",
		metric.WithDescription("Keys flagged by both detectors in the most recent run")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordStep records one executed step
func (m *PipelineMetrics) RecordStep(ctx context.Context, stepID string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
		m.StepErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("step.id", stepID)))
	}
	attrs := metric.WithAttributes(
		attribute.String("step.id", stepID),
		attribute.String("status", status),
	)
	m.StepsTotal.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordDetector records reconciled anomalies and diagnostic counts for one detector
func (m *PipelineMetrics) RecordDetector(ctx context.Context, detectorID string, anomalies int, diagnostics map[string]int) {
	if m == nil {
		return
	}
	m.AnomaliesTotal.Add(ctx, int64(anomalies), metric.WithAttributes(attribute.String("detector", detectorID)))
	for kind, n := range diagnostics {
		m.DiagnosticTotal.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("detector", detectorID),
			attribute.String("kind", kind),
		))
	}
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
