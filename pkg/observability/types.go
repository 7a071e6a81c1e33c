package observability

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ObservabilityConfig holds configuration for the metrics and health
// components shared by every binary in this repository.
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	MetricsEnabled     bool
	PrometheusEndpoint string
	MetricsPort        int

	LogLevel  string
	LogFormat string // "json" or "text"
}

// DefaultConfig returns default observability configuration.
func DefaultConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName:        "vulnscan-engine",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		MetricsEnabled:     true,
		PrometheusEndpoint: "http://localhost:9090",
		MetricsPort:        9090,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Metrics holds every instrument this domain emits.
type Metrics struct {
	ScansSubmitted metric.Int64Counter
	ScansCompleted metric.Int64Counter
	ScansFailed    metric.Int64Counter
	ScanDuration   metric.Float64Histogram
	QueueDepth     metric.Int64Gauge
	ClaimAttempts  metric.Int64Counter
	HealthCheckDur metric.Float64Histogram
}

// MetricLabels holds the common dimensions attached to scan-domain metrics.
type MetricLabels struct {
	Component string // "submission", "worker", "claimer", "health_check"
	Registry  string
	ErrorCode string
	Result    string // "success", "error", "timeout"
	CheckName string
}

// ToAttributes converts MetricLabels to OpenTelemetry attributes.
func (ml *MetricLabels) ToAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{}

	if ml.Component != "" {
		attrs = append(attrs, attribute.String("component", ml.Component))
	}
	if ml.Registry != "" {
		attrs = append(attrs, attribute.String("registry", ml.Registry))
	}
	if ml.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", ml.ErrorCode))
	}
	if ml.Result != "" {
		attrs = append(attrs, attribute.String("result", ml.Result))
	}
	if ml.CheckName != "" {
		attrs = append(attrs, attribute.String("check_name", ml.CheckName))
	}

	return attrs
}

// HealthStatusRecord is a point-in-time health observation for one service.
type HealthStatusRecord struct {
	Service   string                 `json:"service"`
	Status    string                 `json:"status"`
	LastCheck time.Time              `json:"last_check"`
	Duration  time.Duration          `json:"duration"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
