package observability

import (
	"context"
	"testing"
	"time"
)

func TestMetricsService_Disabled(t *testing.T) {
	config := &ObservabilityConfig{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		MetricsEnabled: false,
	}

	ms, err := NewMetricsService(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A disabled service must tolerate every Record*/Update* call as a no-op.
	ms.RecordScanSubmitted(&MetricLabels{Component: "submission"})
	ms.RecordScanCompleted(time.Second, &MetricLabels{Component: "worker", Result: "success"})
	ms.RecordScanFailed(time.Second, &MetricLabels{Component: "worker", Result: "error", ErrorCode: "TIMEOUT"})
	ms.UpdateQueueDepth(3)
	ms.RecordClaimAttempt(&MetricLabels{Component: "claimer", Result: "success"})

	if err := ms.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown on disabled service should be a no-op: %v", err)
	}
}

func TestMetricsService_Enabled(t *testing.T) {
	config := &ObservabilityConfig{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		MetricsEnabled: true,
		MetricsPort:    0,
	}

	ms, err := NewMetricsService(config)
	if err != nil {
		t.Fatalf("Failed to create metrics service: %v", err)
	}

	if ms.GetMetrics() == nil {
		t.Fatal("expected instruments to be initialized")
	}

	labels := &MetricLabels{Component: "submission", Registry: "docker.io"}
	ms.RecordScanSubmitted(labels)
	ms.RecordScanCompleted(2*time.Second, &MetricLabels{Component: "worker", Result: "success"})
	ms.RecordScanFailed(500*time.Millisecond, &MetricLabels{Component: "worker", Result: "error", ErrorCode: "TIMEOUT"})
	ms.UpdateQueueDepth(5)
	ms.RecordClaimAttempt(&MetricLabels{Component: "claimer", Result: "success"})
	ms.RecordHealthCheck(10*time.Millisecond, 1.0, &MetricLabels{Component: "health_check", CheckName: "database"})

	if err := ms.Shutdown(context.Background()); err != nil {
		t.Errorf("Failed to shutdown metrics: %v", err)
	}
}

func TestMetricsService_IncrementCounterDispatch(t *testing.T) {
	config := &ObservabilityConfig{
		ServiceName:    "test-service",
		MetricsEnabled: true,
	}
	ms, err := NewMetricsService(config)
	if err != nil {
		t.Fatalf("Failed to create metrics service: %v", err)
	}

	names := []string{"scans_submitted", "scans_completed", "scans_failed", "claim_attempts", "unknown_metric"}
	for _, name := range names {
		ms.IncrementCounter(name, &MetricLabels{Component: "test"})
	}
}

func TestMetricsService_RecordHistogramDispatch(t *testing.T) {
	config := &ObservabilityConfig{
		ServiceName:    "test-service",
		MetricsEnabled: true,
	}
	ms, err := NewMetricsService(config)
	if err != nil {
		t.Fatalf("Failed to create metrics service: %v", err)
	}

	ms.RecordHistogram("scan_duration", 12.5, &MetricLabels{Component: "worker"})
	ms.RecordHistogram("health_check_duration", 0.01, &MetricLabels{Component: "health_check"})
	ms.RecordHistogram("unknown_metric", 1.0, &MetricLabels{Component: "test"})
}

func TestMetricsService_UpdateGaugeDispatch(t *testing.T) {
	config := &ObservabilityConfig{
		ServiceName:    "test-service",
		MetricsEnabled: true,
	}
	ms, err := NewMetricsService(config)
	if err != nil {
		t.Fatalf("Failed to create metrics service: %v", err)
	}

	ms.UpdateGauge("pending_queue_depth", 7, &MetricLabels{Component: "claimer"})
	ms.UpdateGauge("unknown_metric", 1, &MetricLabels{Component: "test"})
}

func TestMetricLabels_ToAttributes(t *testing.T) {
	labels := &MetricLabels{
		Component: "worker",
		Registry:  "docker.io",
		ErrorCode: "TIMEOUT",
		Result:    "error",
		CheckName: "database",
	}

	attrs := labels.ToAttributes()
	if len(attrs) != 5 {
		t.Errorf("expected 5 attributes, got %d", len(attrs))
	}
}

func TestMetricLabels_ToAttributes_Empty(t *testing.T) {
	labels := &MetricLabels{}
	attrs := labels.ToAttributes()
	if len(attrs) != 0 {
		t.Errorf("expected 0 attributes for empty labels, got %d", len(attrs))
	}
}

func BenchmarkMetricsService_RecordScanCompleted(b *testing.B) {
	config := &ObservabilityConfig{
		ServiceName:    "bench-service",
		MetricsEnabled: true,
	}
	ms, err := NewMetricsService(config)
	if err != nil {
		b.Fatalf("Failed to create metrics service: %v", err)
	}

	labels := &MetricLabels{Component: "worker", Result: "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.RecordScanCompleted(time.Second, labels)
	}
}
