// Package metrics provides Prometheus metrics for the fathom analytics service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Analytics
	comparisons        *prometheus.CounterVec
	changesApplied     prometheus.Counter
	significance       prometheus.Histogram
	patternsDetected   prometheus.Histogram
	detectionLatency   prometheus.Histogram
	patternCacheHits   prometheus.Counter
	patternCacheMisses prometheus.Counter
	patternCacheEvicts prometheus.Counter
	patternCacheSize   prometheus.Gauge

	// Ingestion
	decisionsIngested  prometheus.Counter
	decisionsDuplicate prometheus.Counter
	decisionsRejected  *prometheus.CounterVec
	decisionsStored    prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeRecords      prometheus.Gauge
	storeQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fathom",
		subsystem:        "analytics",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.comparisons = m.counterVec("comparisons_total", "Variant comparisons by winner", "winner")
	m.changesApplied = m.counter("changes_applied_total", "Comparisons that passed the apply-change policy")
	m.significance = m.histogram("significance", "Distribution of significance estimates",
		[]float64{0.5, 0.55, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99})
	m.patternsDetected = m.histogram("patterns_detected", "Number of patterns returned per detection",
		[]float64{0, 1, 2, 5, 10, 15, 20})
	m.detectionLatency = m.histogram("detection_latency_milliseconds", "Pattern detection latency in milliseconds", m.histogramBuckets)
	m.patternCacheHits = m.counter("pattern_cache_hits_total", "Pattern queries served from cache")
	m.patternCacheMisses = m.counter("pattern_cache_misses_total", "Pattern queries computed")
	m.patternCacheEvicts = m.counter("pattern_cache_evictions_total", "Pattern cache entries dropped by expiry or invalidation")
	m.patternCacheSize = m.gauge("pattern_cache_entries", "Entries held by the pattern cache")

	m.decisionsIngested = m.counter("decisions_ingested_total", "Decision records accepted for ingestion")
	m.decisionsDuplicate = m.counter("decisions_duplicate_total", "Decision records dropped as duplicates")
	m.decisionsRejected = m.counterVec("decisions_rejected_total", "Decision records rejected by reason", "reason")
	m.decisionsStored = m.counter("decisions_stored_total", "Decision records persisted by workers")

	m.queueSize = m.gauge("queue_size", "Current size of the ingestion queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the ingestion queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Ingestion queue utilization (0-1)")

	m.workerCount = m.gauge("worker_count", "Number of ingestion workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker processing errors")

	m.storeRecords = m.gauge("store_records", "Decision records held by the store")
	m.storeQueryLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")
}

// RecordComparison counts a comparison by its winner label.
func RecordComparison(winner string) {
	globalManager.comparisons.WithLabelValues(winner).Inc()
}

// RecordChangeApplied counts a comparison that passed the apply policy.
func RecordChangeApplied() {
	globalManager.changesApplied.Inc()
}

// RecordSignificance observes a significance estimate.
func RecordSignificance(v float64) {
	globalManager.significance.Observe(v)
}

// RecordPatternsDetected observes the size of a detection result.
func RecordPatternsDetected(n int) {
	globalManager.patternsDetected.Observe(float64(n))
}

// RecordDetectionLatency observes detection latency in milliseconds.
func RecordDetectionLatency(latencyMs float64) {
	globalManager.detectionLatency.Observe(latencyMs)
}

// RecordPatternCacheHit counts a cache hit.
func RecordPatternCacheHit() {
	globalManager.patternCacheHits.Inc()
}

// RecordPatternCacheMiss counts a cache miss.
func RecordPatternCacheMiss() {
	globalManager.patternCacheMisses.Inc()
}

// RecordPatternCacheEvictions counts dropped cache entries.
func RecordPatternCacheEvictions(n int) {
	globalManager.patternCacheEvicts.Add(float64(n))
}

// UpdatePatternCacheSize sets the number of cached entries.
func UpdatePatternCacheSize(n int) {
	globalManager.patternCacheSize.Set(float64(n))
}

// RecordDecisionIngested counts an accepted decision record.
func RecordDecisionIngested() {
	globalManager.decisionsIngested.Inc()
}

// RecordDecisionDuplicate counts a duplicate decision record.
func RecordDecisionDuplicate() {
	globalManager.decisionsDuplicate.Inc()
}

// RecordDecisionRejected counts a rejected decision record.
func RecordDecisionRejected(reason string) {
	globalManager.decisionsRejected.WithLabelValues(reason).Inc()
}

// RecordDecisionStored counts a persisted decision record.
func RecordDecisionStored() {
	globalManager.decisionsStored.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes worker latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a worker error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateStoreRecords sets the number of stored records.
func UpdateStoreRecords(count int) {
	globalManager.storeRecords.Set(float64(count))
}

// RecordStoreLatency observes a store operation latency in milliseconds.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
