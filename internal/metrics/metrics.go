package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "vpntrail"

// Collector provides a central place for all application metrics
type Collector struct {
	// Tailer metrics
	LinesRead         *prometheus.CounterVec
	RotationsDetected *prometheus.CounterVec

	// Correlator metrics
	EventsEmitted        *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	OrphanLines          prometheus.Counter
	ActiveSessions       prometheus.Gauge
	SessionsEvicted      prometheus.Counter

	// Sink metrics
	SinkWrites        *prometheus.CounterVec
	SinkWriteFailures *prometheus.CounterVec
	SinkWriteDuration *prometheus.HistogramVec

	// Sampler metrics
	SamplerFailures *prometheus.CounterVec

	// Scheduler metrics
	TickDuration  *prometheus.HistogramVec
	TickFailures  *prometheus.CounterVec
	StateSaves    prometheus.Counter
	StateSaveErrs prometheus.Counter

	// Runtime metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
	stop     chan struct{}
	started  bool
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		stop:     make(chan struct{}),
	}

	c.initTailerMetrics()
	c.initCorrelatorMetrics()
	c.initSinkMetrics()
	c.initSamplerMetrics()
	c.initSchedulerMetrics()
	c.initRuntimeMetrics()

	return c
}

func (c *Collector) initTailerMetrics() {
	c.LinesRead = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tailer",
			Name:      "lines_read_total",
			Help:      "Total number of complete log lines consumed",
		},
		[]string{"file"},
	)

	c.RotationsDetected = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tailer",
			Name:      "rotations_detected_total",
			Help:      "Total number of log rotations detected",
		},
		[]string{"file"},
	)
}

func (c *Collector) initCorrelatorMetrics() {
	c.EventsEmitted = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "events_emitted_total",
			Help:      "Total number of connection events emitted by type",
		},
		[]string{"event_type"},
	)

	c.DuplicatesSuppressed = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of events suppressed by the dedup cache",
		},
	)

	c.OrphanLines = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "orphan_lines_total",
			Help:      "Total number of lines referencing an unknown session",
		},
	)

	c.ActiveSessions = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "active_sessions",
			Help:      "Number of sessions currently tracked",
		},
	)

	c.SessionsEvicted = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "sessions_evicted_total",
			Help:      "Total number of idle sessions evicted without a disconnect",
		},
	)
}

func (c *Collector) initSinkMetrics() {
	c.SinkWrites = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Total number of records written by sink type",
		},
		[]string{"sink", "record_type"},
	)

	c.SinkWriteFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_failures_total",
			Help:      "Total number of failed sink writes by sink type",
		},
		[]string{"sink", "record_type"},
	)

	c.SinkWriteDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_duration_seconds",
			Help:      "Time taken to write one record",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
}

func (c *Collector) initSamplerMetrics() {
	c.SamplerFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "failures_total",
			Help:      "Total number of failed system metric reads by metric",
		},
		[]string{"metric"},
	)
}

func (c *Collector) initSchedulerMetrics() {
	c.TickDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time taken by one scheduled pass",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"pass"},
	)

	c.TickFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_failures_total",
			Help:      "Total number of passes that ended with an error",
		},
		[]string{"pass"},
	)

	c.StateSaves = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "saves_total",
			Help:      "Total number of state file saves",
		},
	)

	c.StateSaveErrs = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "save_errors_total",
			Help:      "Total number of failed state file saves",
		},
	)
}

func (c *Collector) initRuntimeMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_alloc_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_sys_bytes",
			Help:      "Total bytes obtained from the OS",
		},
	)
}

// Start begins periodic runtime metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectRuntimeMetrics()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false
	close(c.stop)
}

func (c *Collector) collectRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
