package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsService manages the Prometheus-backed metrics this domain emits:
// submission/completion/failure counters, scan duration, queue depth, and
// claim contention.
type MetricsService struct {
	config   *ObservabilityConfig
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	metrics  *Metrics
	server   *http.Server
}

// NewMetricsService creates a new metrics service. When metrics are
// disabled in configuration, a no-op service is returned so callers never
// need to nil-check.
func NewMetricsService(config *ObservabilityConfig) (*MetricsService, error) {
	if !config.MetricsEnabled {
		return &MetricsService{config: config}, nil
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(config.ServiceName)

	metrics, err := initializeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.MetricsPort),
		Handler: mux,
	}

	return &MetricsService{
		config:   config,
		provider: provider,
		meter:    meter,
		metrics:  metrics,
		server:   server,
	}, nil
}

// Start starts the metrics HTTP server.
func (ms *MetricsService) Start() error {
	if !ms.config.MetricsEnabled {
		return nil
	}

	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics service.
func (ms *MetricsService) Shutdown(ctx context.Context) error {
	if ms.server != nil {
		if err := ms.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
	}
	if ms.provider != nil {
		if err := ms.provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}

// GetMetrics returns the metrics instance.
func (ms *MetricsService) GetMetrics() *Metrics {
	return ms.metrics
}

// RecordScanSubmitted increments the submission counter.
func (ms *MetricsService) RecordScanSubmitted(labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	ms.metrics.ScansSubmitted.Add(context.Background(), 1, metric.WithAttributes(labels.ToAttributes()...))
}

// RecordScanCompleted increments the completion counter and records the
// total scan duration.
func (ms *MetricsService) RecordScanCompleted(duration time.Duration, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	attrs := labels.ToAttributes()
	ms.metrics.ScansCompleted.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	ms.metrics.ScanDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordScanFailed increments the failure counter and records the elapsed
// duration up to the failure.
func (ms *MetricsService) RecordScanFailed(duration time.Duration, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	attrs := labels.ToAttributes()
	ms.metrics.ScansFailed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	ms.metrics.ScanDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrs...))
}

// UpdateQueueDepth records the current pending-queue depth.
func (ms *MetricsService) UpdateQueueDepth(depth int64) {
	if !ms.config.MetricsEnabled {
		return
	}
	ms.metrics.QueueDepth.Record(context.Background(), depth)
}

// RecordClaimAttempt increments the claim-attempt counter, distinguishing a
// successful claim from a lost race via labels.Result.
func (ms *MetricsService) RecordClaimAttempt(labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	ms.metrics.ClaimAttempts.Add(context.Background(), 1, metric.WithAttributes(labels.ToAttributes()...))
}

// RecordHealthCheck records the duration of a single health checker's run;
// the status argument is accepted but not recorded. Consumed by
// HealthService.performHealthChecks.
func (ms *MetricsService) RecordHealthCheck(duration time.Duration, status float64, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	attrs := labels.ToAttributes()
	ms.metrics.HealthCheckDur.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrs...))
}

// initializeMetrics creates every metric instrument this domain emits.
func initializeMetrics(meter metric.Meter) (*Metrics, error) {
	scansSubmitted, err := meter.Int64Counter(
		"vulnscan_scans_submitted_total",
		metric.WithDescription("Total number of scans submitted"),
	)
	if err != nil {
		return nil, err
	}

	scansCompleted, err := meter.Int64Counter(
		"vulnscan_scans_completed_total",
		metric.WithDescription("Total number of scans that reached completed"),
	)
	if err != nil {
		return nil, err
	}

	scansFailed, err := meter.Int64Counter(
		"vulnscan_scans_failed_total",
		metric.WithDescription("Total number of scans that reached failed"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram(
		"vulnscan_scan_duration_seconds",
		metric.WithDescription("End-to-end scan duration from pulling to terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"vulnscan_pending_queue_depth",
		metric.WithDescription("Number of scans currently in pending state"),
	)
	if err != nil {
		return nil, err
	}

	claimAttempts, err := meter.Int64Counter(
		"vulnscan_claim_attempts_total",
		metric.WithDescription("Total number of Job Claimer claim attempts, labeled by result"),
	)
	if err != nil {
		return nil, err
	}

	healthCheckDuration, err := meter.Float64Histogram(
		"vulnscan_health_check_duration_seconds",
		metric.WithDescription("Duration of individual health checks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ScansSubmitted: scansSubmitted,
		ScansCompleted: scansCompleted,
		ScansFailed:    scansFailed,
		ScanDuration:   scanDuration,
		QueueDepth:     queueDepth,
		ClaimAttempts:  claimAttempts,
		HealthCheckDur: healthCheckDuration,
	}, nil
}

// IncrementCounter dispatches by name to one of the counter instruments;
// kept as a generic entry point alongside the named Record* methods above
// so callers that only have a string metric name (e.g. from configuration-
// driven instrumentation) do not need a type switch of their own.
func (ms *MetricsService) IncrementCounter(name string, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	attrs := labels.ToAttributes()
	switch name {
	case "scans_submitted":
		ms.metrics.ScansSubmitted.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	case "scans_completed":
		ms.metrics.ScansCompleted.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	case "scans_failed":
		ms.metrics.ScansFailed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	case "claim_attempts":
		ms.metrics.ClaimAttempts.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

// RecordHistogram dispatches by name to one of the histogram instruments.
func (ms *MetricsService) RecordHistogram(name string, value float64, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	attrs := labels.ToAttributes()
	switch name {
	case "scan_duration":
		ms.metrics.ScanDuration.Record(context.Background(), value, metric.WithAttributes(attrs...))
	case "health_check_duration":
		ms.metrics.HealthCheckDur.Record(context.Background(), value, metric.WithAttributes(attrs...))
	}
}

// UpdateGauge dispatches by name to one of the gauge instruments.
func (ms *MetricsService) UpdateGauge(name string, value float64, labels *MetricLabels) {
	if !ms.config.MetricsEnabled {
		return
	}
	switch name {
	case "pending_queue_depth":
		ms.metrics.QueueDepth.Record(context.Background(), int64(value))
	}
}
