// Package metrics provides Prometheus-based metrics collection for netrecon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all netrecon metrics
	namespace = "netrecon"

	// Subsystems
	subsystemScan      = "scan"
	subsystemDiscovery = "discovery"
	subsystemPorts     = "ports"
	subsystemWorkers   = "workers"
	subsystemAPI       = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	scansTotal    *prometheus.CounterVec
	scanDuration  *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec

	hostsDiscovered *prometheus.CounterVec
	portsProbed     *prometheus.CounterVec
	riskAssessed    *prometheus.CounterVec

	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a metrics instance backed by its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{registry: prometheus.NewRegistry()}

	pm.scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "total",
		Help:      "Total number of scans by type and terminal state",
	}, []string{"scan_type", "state"})

	pm.scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "duration_seconds",
		Help:      "Duration of scans in seconds",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 300, 600},
	}, []string{"scan_type"})

	pm.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "phase_duration_seconds",
		Help:      "Duration of individual scan phases in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})

	pm.hostsDiscovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemDiscovery,
		Name:      "hosts_total",
		Help:      "Hosts reported by each discovery method",
	}, []string{"method"})

	pm.portsProbed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemPorts,
		Name:      "probed_total",
		Help:      "Ports probed by protocol and verdict",
	}, []string{"protocol", "verdict"})

	pm.riskAssessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "risk_assessed_total",
		Help:      "Hosts assigned to each risk tier",
	}, []string{"tier"})

	pm.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemWorkers,
		Name:      "jobs_total",
		Help:      "Worker pool jobs by type and status",
	}, []string{"job_type", "status"})

	pm.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemWorkers,
		Name:      "job_duration_seconds",
		Help:      "Worker pool job duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job_type"})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "requests_total",
		Help:      "HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})

	pm.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	pm.registry.MustRegister(
		pm.scansTotal, pm.scanDuration, pm.phaseDuration,
		pm.hostsDiscovered, pm.portsProbed, pm.riskAssessed,
		pm.jobsTotal, pm.jobDuration,
		pm.httpRequests, pm.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return pm
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// ScanFinished implements Recorder.
func (pm *PrometheusMetrics) ScanFinished(scanType, state string, duration time.Duration) {
	pm.scansTotal.WithLabelValues(scanType, state).Inc()
	pm.scanDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

// PhaseFinished implements Recorder.
func (pm *PrometheusMetrics) PhaseFinished(phase string, duration time.Duration) {
	pm.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// HostsDiscovered implements Recorder.
func (pm *PrometheusMetrics) HostsDiscovered(method string, count int) {
	pm.hostsDiscovered.WithLabelValues(method).Add(float64(count))
}

// PortsProbed implements Recorder.
func (pm *PrometheusMetrics) PortsProbed(protocol, verdict string, count int) {
	pm.portsProbed.WithLabelValues(protocol, verdict).Add(float64(count))
}

// RiskAssessed implements Recorder.
func (pm *PrometheusMetrics) RiskAssessed(tier string) {
	pm.riskAssessed.WithLabelValues(tier).Inc()
}

// JobFinished implements Recorder.
func (pm *PrometheusMetrics) JobFinished(jobType, status string, duration time.Duration) {
	pm.jobsTotal.WithLabelValues(jobType, status).Inc()
	pm.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// HTTPRequest implements Recorder.
func (pm *PrometheusMetrics) HTTPRequest(method, path string, status int, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
