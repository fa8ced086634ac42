package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.registry == nil {
		t.Error("registry is nil")
	}
	if c.LinesRead == nil {
		t.Error("LinesRead is nil")
	}
	if c.EventsEmitted == nil {
		t.Error("EventsEmitted is nil")
	}
	if c.SinkWrites == nil {
		t.Error("SinkWrites is nil")
	}
}

func TestCorrelatorMetrics(t *testing.T) {
	c := NewCollector()

	c.EventsEmitted.WithLabelValues("connect").Add(3)
	c.ActiveSessions.Set(2)
	c.DuplicatesSuppressed.Inc()

	metric := &dto.Metric{}
	if err := c.EventsEmitted.WithLabelValues("connect").(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 3 {
		t.Errorf("Expected 3, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := c.ActiveSessions.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 2 {
		t.Errorf("Expected 2, got %f", metric.Gauge.GetValue())
	}
}

func TestSinkMetrics(t *testing.T) {
	c := NewCollector()

	c.SinkWrites.WithLabelValues("mongodb", "connection_event").Add(10)
	c.SinkWriteFailures.WithLabelValues("mongodb", "connection_event").Inc()
	c.SinkWriteDuration.WithLabelValues("mongodb").Observe(0.02)

	metric := &dto.Metric{}
	if err := c.SinkWrites.WithLabelValues("mongodb", "connection_event").(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 10 {
		t.Errorf("Expected 10, got %f", metric.Counter.GetValue())
	}
}

func TestSchedulerMetrics(t *testing.T) {
	c := NewCollector()

	c.TickDuration.WithLabelValues("log").Observe(0.5)
	c.TickFailures.WithLabelValues("stats").Inc()
	c.StateSaves.Inc()

	metric := &dto.Metric{}
	if err := c.TickFailures.WithLabelValues("stats").(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Expected 1, got %f", metric.Counter.GetValue())
	}
}

func TestRuntimeMetricsCollection(t *testing.T) {
	c := NewCollector()
	c.collectRuntimeMetrics()

	metric := &dto.Metric{}
	if err := c.SystemGoroutines.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() <= 0 {
		t.Error("Goroutine count should be positive")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	c := NewCollector()
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}

func TestRegistryGathers(t *testing.T) {
	c := NewCollector()
	c.LinesRead.WithLabelValues("/var/log/openvpn.log").Add(42)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected at least one metric family")
	}
}
