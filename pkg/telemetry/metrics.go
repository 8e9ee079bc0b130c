package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the Tidemark engine.
type Metrics struct {
	config MetricsConfig

	// Transaction metrics
	transactionsStarted   prometheus.Counter
	transactionsCompleted *prometheus.CounterVec
	transactionDuration   prometheus.Histogram

	// Service lifecycle metrics
	serviceOperations *prometheus.CounterVec
	serviceDuration   *prometheus.HistogramVec

	// Chart installation metrics
	chartInstalls       *prometheus.CounterVec
	chartInstallSeconds *prometheus.HistogramVec

	// DNS readiness metrics
	dnsProbeAttempts *prometheus.CounterVec
	dnsProbeOutcomes *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		transactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidemark_transactions_started_total",
			Help: "Total number of deployment transactions started.",
		}),
		transactionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_transactions_completed_total",
			Help: "Total number of deployment transactions by terminal result.",
		}, []string{"result"}),
		transactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tidemark_transaction_duration_seconds",
			Help:    "Wall-clock duration of deployment transactions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		serviceOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_service_operations_total",
			Help: "Lifecycle hook invocations by service kind, action and outcome.",
		}, []string{"kind", "action", "outcome"}),
		serviceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tidemark_service_operation_duration_seconds",
			Help:    "Duration of service lifecycle hooks.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind", "action"}),
		chartInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_chart_installs_total",
			Help: "Chart install attempts by chart name and outcome.",
		}, []string{"chart", "outcome"}),
		chartInstallSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tidemark_chart_install_duration_seconds",
			Help:    "Duration of chart installs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"chart"}),
		dnsProbeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_dns_probe_attempts_total",
			Help: "DNS readiness probe attempts by record type.",
		}, []string{"record_type"}),
		dnsProbeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_dns_probe_outcomes_total",
			Help: "DNS readiness probe outcomes (resolved, unconfirmed).",
		}, []string{"record_type", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.transactionsStarted,
		m.transactionsCompleted,
		m.transactionDuration,
		m.serviceOperations,
		m.serviceDuration,
		m.chartInstalls,
		m.chartInstallSeconds,
		m.dnsProbeAttempts,
		m.dnsProbeOutcomes,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// TransactionStarted records the start of a transaction.
func (m *Metrics) TransactionStarted() {
	m.transactionsStarted.Inc()
}

// TransactionCompleted records a terminal transaction result and its duration.
func (m *Metrics) TransactionCompleted(result string, duration time.Duration) {
	m.transactionsCompleted.WithLabelValues(result).Inc()
	m.transactionDuration.Observe(duration.Seconds())
}

// ServiceOperation records one lifecycle hook invocation.
func (m *Metrics) ServiceOperation(kind, action, outcome string, duration time.Duration) {
	m.serviceOperations.WithLabelValues(kind, action, outcome).Inc()
	m.serviceDuration.WithLabelValues(kind, action).Observe(duration.Seconds())
}

// ChartInstall records one chart install attempt.
func (m *Metrics) ChartInstall(chart, outcome string, duration time.Duration) {
	m.chartInstalls.WithLabelValues(chart, outcome).Inc()
	m.chartInstallSeconds.WithLabelValues(chart).Observe(duration.Seconds())
}

// DNSProbeAttempt records a single resolver query.
func (m *Metrics) DNSProbeAttempt(recordType string) {
	m.dnsProbeAttempts.WithLabelValues(recordType).Inc()
}

// DNSProbeOutcome records the terminal outcome of a readiness probe.
func (m *Metrics) DNSProbeOutcome(recordType, outcome string) {
	m.dnsProbeOutcomes.WithLabelValues(recordType, outcome).Inc()
}

// Serve starts the metrics HTTP endpoint. It blocks until the server stops.
func (m *Metrics) Serve() error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    m.config.ListenAddr,
		Handler: mux,
	}
	return m.server.ListenAndServe()
}

// Close shuts down the metrics HTTP endpoint if it is running.
func (m *Metrics) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}
