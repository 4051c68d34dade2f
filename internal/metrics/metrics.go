package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes supervisor metrics. Each supervisor instance owns its
// registry so tests can create collectors freely.
type Collector struct {
	registry *prometheus.Registry

	probesTotal         *prometheus.CounterVec
	probeDuration       prometheus.Histogram
	healthState         prometheus.Gauge
	consecutiveFailures prometheus.Gauge
	workersRunning      prometheus.Gauge
	workerExitsTotal    prometheus.Counter
	uptimeSeconds       prometheus.GaugeFunc
}

// NewCollector creates and registers all supervisor metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	startTime := time.Now()

	c := &Collector{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stayd_probes_total",
				Help: "Total liveness probes by result",
			},
			[]string{"result"},
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stayd_probe_duration_seconds",
				Help:    "Liveness probe round-trip time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		healthState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stayd_health_state",
				Help: "Instance health state (0=starting, 1=healthy, 2=unhealthy)",
			},
		),
		consecutiveFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stayd_probe_consecutive_failures",
				Help: "Current consecutive probe failure streak",
			},
		),
		workersRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stayd_workers_running",
				Help: "Number of worker processes currently running",
			},
		),
		workerExitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stayd_worker_exits_total",
				Help: "Total worker process exits observed",
			},
		),
		uptimeSeconds: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "stayd_uptime_seconds",
				Help: "Time since the supervisor started",
			},
			func() float64 { return time.Since(startTime).Seconds() },
		),
	}

	registry.MustRegister(
		c.probesTotal,
		c.probeDuration,
		c.healthState,
		c.consecutiveFailures,
		c.workersRunning,
		c.workerExitsTotal,
		c.uptimeSeconds,
		version.NewCollector("stayd"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// ObserveProbe records one probe outcome.
func (c *Collector) ObserveProbe(healthy bool, latency time.Duration, state int, consecutiveFailures int) {
	result := "failure"
	if healthy {
		result = "success"
	}
	c.probesTotal.WithLabelValues(result).Inc()
	c.probeDuration.Observe(latency.Seconds())
	c.healthState.Set(float64(state))
	c.consecutiveFailures.Set(float64(consecutiveFailures))
}

// SetWorkersRunning updates the running worker gauge.
func (c *Collector) SetWorkersRunning(n int) {
	c.workersRunning.Set(float64(n))
}

// RecordWorkerExit counts a worker process exit.
func (c *Collector) RecordWorkerExit() {
	c.workerExitsTotal.Inc()
}

// Handler returns the Prometheus scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry. Used by tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
