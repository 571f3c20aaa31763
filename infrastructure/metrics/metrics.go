// Package metrics provides Prometheus metrics collection for the discovery
// pipeline: adapter fetches, LLM calls, storage operations and the scoring
// dimensions that make up an OpportunityScore run.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors used across the pipeline.
type Metrics struct {
	// Adapter metrics
	AdapterRequestsTotal   *prometheus.CounterVec
	AdapterRequestDuration *prometheus.HistogramVec
	PostsIngestedTotal     *prometheus.CounterVec
	PostsPrefilteredTotal  *prometheus.CounterVec

	// LLM metrics
	LLMCallsTotal   *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec

	// Scoring / storage metrics
	OpportunityScoresTotal  *prometheus.CounterVec
	StorageOperationsTotal  *prometheus.CounterVec
	StorageOperationLatency *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry, so
// tests can avoid colliding with the global default registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdapterRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapter_requests_total",
				Help: "Total number of upstream requests issued by source adapters",
			},
			[]string{"service", "adapter", "operation", "status"},
		),
		AdapterRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adapter_request_duration_seconds",
				Help:    "Adapter upstream request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "adapter", "operation"},
		),
		PostsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_ingested_total",
				Help: "Total number of normalized posts returned by adapters",
			},
			[]string{"service", "source"},
		),
		PostsPrefilteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_prefiltered_total",
				Help: "Total number of posts dropped by the engagement prefilter before an LLM call",
			},
			[]string{"service", "source"},
		),

		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_calls_total",
				Help: "Total number of LLM completion calls",
			},
			[]string{"service", "provider", "status"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_call_duration_seconds",
				Help:    "LLM completion call duration in seconds, including pacing delay",
				Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"service", "provider"},
		),

		OpportunityScoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opportunity_scores_total",
				Help: "Total number of opportunity scores computed, by source",
			},
			[]string{"service", "source"},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"service", "operation", "status"},
		),
		StorageOperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by type and operation",
			},
			[]string{"service", "type", "operation"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service build information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.AdapterRequestsTotal,
			m.AdapterRequestDuration,
			m.PostsIngestedTotal,
			m.PostsPrefilteredTotal,
			m.LLMCallsTotal,
			m.LLMCallDuration,
			m.OpportunityScoresTotal,
			m.StorageOperationsTotal,
			m.StorageOperationLatency,
			m.ErrorsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordAdapterRequest records one upstream request made by a source adapter.
func (m *Metrics) RecordAdapterRequest(service, adapter, operation, status string, duration time.Duration) {
	m.AdapterRequestsTotal.WithLabelValues(service, adapter, operation, status).Inc()
	m.AdapterRequestDuration.WithLabelValues(service, adapter, operation).Observe(duration.Seconds())
}

// RecordPostsIngested records the number of posts an adapter returned for one target.
func (m *Metrics) RecordPostsIngested(service, source string, count int) {
	m.PostsIngestedTotal.WithLabelValues(service, source).Add(float64(count))
}

// RecordPrefiltered records a post dropped by the engagement prefilter.
func (m *Metrics) RecordPrefiltered(service, source string) {
	m.PostsPrefilteredTotal.WithLabelValues(service, source).Inc()
}

// RecordLLMCall records one LLM completion call.
func (m *Metrics) RecordLLMCall(service, provider, status string, duration time.Duration) {
	m.LLMCallsTotal.WithLabelValues(service, provider, status).Inc()
	m.LLMCallDuration.WithLabelValues(service, provider).Observe(duration.Seconds())
}

// RecordOpportunityScore records one persisted OpportunityScore.
func (m *Metrics) RecordOpportunityScore(service, source string) {
	m.OpportunityScoresTotal.WithLabelValues(service, source).Inc()
}

// RecordStorageOperation records one Store call.
func (m *Metrics) RecordStorageOperation(service, operation, status string, duration time.Duration) {
	m.StorageOperationsTotal.WithLabelValues(service, operation, status).Inc()
	m.StorageOperationLatency.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError records an error by type and operation.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
// Defaults to enabled unless explicitly disabled via METRICS_ENABLED.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance, initialized once at process startup.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a default one if needed.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("discovery-pipeline")
	}
	return globalMetrics
}
