package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for MailerPro
type Metrics struct {
	// Delivery counters
	EmailsSentTotal    *prometheus.CounterVec
	EmailsFailedTotal  *prometheus.CounterVec
	EmailsRetriedTotal *prometheus.CounterVec
	TasksSkippedTotal  *prometheus.CounterVec

	// Task queue gauges
	TasksPending prometheus.Gauge
	TasksSending prometheus.Gauge
	TasksFailed  prometheus.Gauge

	// Quota counters
	QuotaExhaustedTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		// Delivery counters
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_emails_sent_total",
				Help: "Total number of successfully delivered emails",
			},
			[]string{"campaign_id"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_emails_failed_total",
				Help: "Total number of permanently failed sends",
			},
			[]string{"campaign_id", "error_kind"},
		),
		EmailsRetriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_emails_retried_total",
				Help: "Total number of sends deferred for retry",
			},
			[]string{"campaign_id", "error_kind"},
		),
		TasksSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_tasks_skipped_total",
				Help: "Total number of tasks skipped",
			},
			[]string{"campaign_id", "reason"},
		),

		// Task queue gauges
		TasksPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailerpro_tasks_pending",
				Help: "Number of tasks waiting for their scheduled time",
			},
		),
		TasksSending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailerpro_tasks_sending",
				Help: "Number of tasks currently being delivered",
			},
		),
		TasksFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailerpro_tasks_failed",
				Help: "Number of permanently failed tasks",
			},
		),

		// Quota counters
		QuotaExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_quota_exhausted_total",
				Help: "Total number of scheduling passes that ran out of account quota",
			},
			[]string{"campaign_id"},
		),

		// API metrics
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailerpro_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailerpro_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// System metrics
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailerpro_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailerpro_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsRetriedTotal,
		m.TasksSkippedTotal,
		m.TasksPending,
		m.TasksSending,
		m.TasksFailed,
		m.QuotaExhaustedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailsSent increments the sent email counter
func IncEmailsSent(campaignID string) {
	m := Global()
	if m != nil {
		m.EmailsSentTotal.WithLabelValues(campaignID).Inc()
	}
}

// IncEmailsFailed increments the failed email counter
func IncEmailsFailed(campaignID, errorKind string) {
	m := Global()
	if m != nil {
		m.EmailsFailedTotal.WithLabelValues(campaignID, errorKind).Inc()
	}
}

// IncEmailsRetried increments the retried email counter
func IncEmailsRetried(campaignID, errorKind string) {
	m := Global()
	if m != nil {
		m.EmailsRetriedTotal.WithLabelValues(campaignID, errorKind).Inc()
	}
}

// IncTasksSkipped increments the skip counter
func IncTasksSkipped(campaignID, reason string) {
	m := Global()
	if m != nil {
		m.TasksSkippedTotal.WithLabelValues(campaignID, reason).Inc()
	}
}

// IncQuotaExhausted increments the quota exhaustion counter
func IncQuotaExhausted(campaignID string) {
	m := Global()
	if m != nil {
		m.QuotaExhaustedTotal.WithLabelValues(campaignID).Inc()
	}
}
