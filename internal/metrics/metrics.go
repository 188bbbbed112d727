// Package metrics provides Prometheus-based metrics collection for scanflow.
// It tracks orchestration runs, job lifecycle transitions, discovery sweeps,
// and aggregation outcomes for monitoring long scan batches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all scanflow metrics.
	namespace = "scanflow"

	subsystemRun       = "run"
	subsystemJobs      = "jobs"
	subsystemDiscovery = "discovery"
	subsystemReport    = "report"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// Run metrics.
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Dispatch metrics.
	jobsTotal   *prometheus.CounterVec
	jobDuration prometheus.Histogram
	runningJobs prometheus.Gauge

	// Discovery metrics.
	probesTotal     *prometheus.CounterVec
	hostsDiscovered prometheus.Counter

	// Aggregation metrics.
	findingsTotal  *prometheus.CounterVec
	artifactsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a metrics instance with all collectors registered on a
// private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemRun,
				Name:      "total",
				Help:      "Total number of orchestration runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystemRun,
				Name:      "duration_seconds",
				Help:      "Duration of complete orchestration runs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
			},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "total",
				Help:      "Total number of scan jobs by terminal state",
			},
			[]string{"state"},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "duration_seconds",
				Help:      "Duration of individual scan worker jobs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
			},
		),
		runningJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystemJobs,
				Name:      "running",
				Help:      "Number of scan workers currently running",
			},
		),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemDiscovery,
				Name:      "probes_total",
				Help:      "Total number of liveness probes by method and result",
			},
			[]string{"method", "result"},
		),
		hostsDiscovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemDiscovery,
				Name:      "hosts_total",
				Help:      "Total number of hosts found active",
			},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemReport,
				Name:      "findings_total",
				Help:      "Total number of findings aggregated by severity",
			},
			[]string{"severity"},
		),
		artifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystemReport,
				Name:      "artifacts_total",
				Help:      "Total number of artifacts parsed by outcome",
			},
			[]string{"outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal, m.runDuration,
		m.jobsTotal, m.jobDuration, m.runningJobs,
		m.probesTotal, m.hostsDiscovered,
		m.findingsTotal, m.artifactsTotal,
	)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for testing.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a completed orchestration run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// JobStarted increments the running-jobs gauge.
func (m *Metrics) JobStarted() {
	m.runningJobs.Inc()
}

// JobFinished records a job reaching a terminal state.
func (m *Metrics) JobFinished(state string, duration time.Duration) {
	m.runningJobs.Dec()
	m.jobsTotal.WithLabelValues(state).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// RecordProbe records one liveness probe attempt.
func (m *Metrics) RecordProbe(method, result string) {
	m.probesTotal.WithLabelValues(method, result).Inc()
	if result == "active" {
		m.hostsDiscovered.Inc()
	}
}

// RecordFinding counts one aggregated finding.
func (m *Metrics) RecordFinding(severity string) {
	m.findingsTotal.WithLabelValues(severity).Inc()
}

// RecordArtifact counts one parsed artifact by outcome.
func (m *Metrics) RecordArtifact(outcome string) {
	m.artifactsTotal.WithLabelValues(outcome).Inc()
}

// Global instance used by components that are not handed an explicit
// metrics handle.
var defaultMetrics = New()

// Default returns the default metrics instance.
func Default() *Metrics {
	return defaultMetrics
}

// SetDefault replaces the default metrics instance.
func SetDefault(m *Metrics) {
	defaultMetrics = m
}
