package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newIsolatedMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.NewRegistry())
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := gauge.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewPipelineMetrics(t *testing.T) {
	metrics := newIsolatedMetrics()

	if metrics.ordersSubmitted == nil {
		t.Error("ordersSubmitted counter should not be nil")
	}
	if metrics.ordersRejected == nil {
		t.Error("ordersRejected counter should not be nil")
	}
	if metrics.ordersCommitted == nil {
		t.Error("ordersCommitted counter should not be nil")
	}
	if metrics.ordersRolledBack == nil {
		t.Error("ordersRolledBack counter should not be nil")
	}
	if metrics.ordersFailed == nil {
		t.Error("ordersFailed counter should not be nil")
	}
	if metrics.pipelineDuration == nil {
		t.Error("pipelineDuration histogram should not be nil")
	}
	if metrics.stageDuration == nil {
		t.Error("stageDuration histogram vec should not be nil")
	}
	if metrics.activeOrders == nil {
		t.Error("activeOrders gauge should not be nil")
	}
}

func TestDuplicateRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newPipelineMetricsWithRegisterer(registry)
	second := newPipelineMetricsWithRegisterer(registry)

	first.RecordOrderSubmitted()
	second.RecordOrderSubmitted()

	if got := counterValue(t, first.ordersSubmitted); got != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", got)
	}
}

func TestRecordTerminalOutcomes(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderRejected()
	metrics.RecordOrderCommitted()
	metrics.RecordOrderCommitted()
	metrics.RecordOrderRolledBack()
	metrics.RecordOrderFailed()

	if got := counterValue(t, metrics.ordersRejected); got != 1.0 {
		t.Errorf("rejected = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.ordersCommitted); got != 2.0 {
		t.Errorf("committed = %f, want 2.0", got)
	}
	if got := counterValue(t, metrics.ordersRolledBack); got != 1.0 {
		t.Errorf("rolled back = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.ordersFailed); got != 1.0 {
		t.Errorf("failed = %f, want 1.0", got)
	}
}

func TestOrderLifecycleTracksInFlight(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderSubmitted() // active: 1
	metrics.RecordOrderSubmitted() // active: 2
	metrics.RecordOrderSubmitted() // active: 3

	metrics.RecordOrderCommitted()
	metrics.RecordOrderFinished() // active: 2
	metrics.RecordOrderRolledBack()
	metrics.RecordOrderFinished() // active: 1

	if got := gaugeValue(t, metrics.activeOrders); got != 1.0 {
		t.Errorf("active orders = %f, want 1.0", got)
	}
	if got := counterValue(t, metrics.ordersSubmitted); got != 3.0 {
		t.Errorf("submitted = %f, want 3.0", got)
	}
}

func TestRecordPipelineDuration(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordPipelineDuration(100 * time.Millisecond)
	metrics.RecordPipelineDuration(500 * time.Millisecond)
	metrics.RecordPipelineDuration(1 * time.Second)

	metric := &dto.Metric{}
	if err := metrics.pipelineDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", metric.Histogram.GetSampleCount())
	}
	sum := metric.Histogram.GetSampleSum()
	if sum < 1.5 || sum > 1.7 {
		t.Errorf("expected sum around 1.6, got %f", sum)
	}
}

func TestRecordStageDuration(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordStageDuration("reserve", 5*time.Millisecond)
	metrics.RecordStageDuration("charge", 100*time.Millisecond)

	metric := &dto.Metric{}
	observer := metrics.stageDuration.WithLabelValues("reserve")
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write reserve metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample for reserve, got %d", metric.Histogram.GetSampleCount())
	}
}
