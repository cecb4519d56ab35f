// Package metrics provides Prometheus metrics for the casemap service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the casemap service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline metrics
	pipelineState      prometheus.Gauge
	pagesFetched       *prometheus.CounterVec
	pageErrors         *prometheus.CounterVec
	pageFetchLatency   *prometheus.HistogramVec
	recordsIngested    *prometheus.CounterVec
	joinMisses         prometheus.Counter
	duplicateAreas     prometheus.Counter
	areasTotal         prometheus.Gauge
	flushes            *prometheus.CounterVec
	snapshotBuildLatMs prometheus.Histogram

	// Render metrics
	paints          prometheus.Counter
	paintsSkipped   *prometheus.CounterVec
	paintLatency    prometheus.Histogram
	tokenFetches    *prometheus.CounterVec
	renderAuthError prometheus.Counter

	// Surface event metrics
	surfaceEvents          *prometheus.CounterVec
	surfaceEventsDuplicate prometheus.Counter
	dispatchLatency        prometheus.Histogram
	dispatchErrors         prometheus.Counter

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "casemap",
		subsystem:        "map",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often polled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Pipeline
	m.pipelineState = m.gauge("pipeline_state", "Current pipeline phase (0 idle, 1 metadata, 2 page, 3 flushing, 4 completed, 5 failed)")
	m.pagesFetched = m.counterVec("pages_fetched_total", "Dataset pages fetched and consumed", "resource")
	m.pageErrors = m.counterVec("page_errors_total", "Dataset page fetches that aborted a resource", "resource")
	m.pageFetchLatency = m.histogramVec("page_fetch_latency_milliseconds", "Dataset page fetch latency in milliseconds", "resource")
	m.recordsIngested = m.counterVec("records_ingested_total", "Records ingested by the aggregator", "stream")
	m.joinMisses = m.counter("join_misses_total", "Case records dropped because no area matched their name")
	m.duplicateAreas = m.counter("duplicate_areas_total", "Geometry records skipped because their cleaned name already exists")
	m.areasTotal = m.gauge("areas_total", "Areas in the working dataset")
	m.flushes = m.counterVec("flushes_total", "Snapshots handed to the renderer", "reason")
	m.snapshotBuildLatMs = m.histogram("snapshot_build_duration_milliseconds", "Snapshot copy duration in milliseconds", m.histogramBuckets)

	// Render
	m.paints = m.counter("paints_total", "Feature collections pushed to the surface")
	m.paintsSkipped = m.counterVec("paints_skipped_total", "SetData calls that did not paint", "reason")
	m.paintLatency = m.histogram("paint_latency_milliseconds", "Feature collection build and push latency in milliseconds", m.histogramBuckets)
	m.tokenFetches = m.counterVec("token_fetches_total", "Access token fetches", "result")
	m.renderAuthError = m.counter("render_auth_errors_total", "401 errors reported by the render surface")

	// Surface events
	m.surfaceEvents = m.counterVec("surface_events_total", "Discrete events received from the render surface", "type")
	m.surfaceEventsDuplicate = m.counter("surface_events_duplicate_total", "Surface events ignored because their id was already seen")
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds", "Surface event dispatch latency in milliseconds", m.histogramBuckets)
	m.dispatchErrors = m.counter("dispatch_errors_total", "Surface events whose handling failed")

	// Queue
	m.queueSize = m.gauge("queue_size", "Current size of the surface event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum surface event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	// HTTP
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	// Errors
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	// System
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Pipeline Metrics Functions.

// UpdatePipelineState sets the numeric pipeline phase.
func UpdatePipelineState(phase int) {
	globalManager.pipelineState.Set(float64(phase))
}

// RecordPageFetched counts a consumed page and its fetch latency.
func RecordPageFetched(resource string, latencyMs float64) {
	globalManager.pagesFetched.WithLabelValues(resource).Inc()
	globalManager.pageFetchLatency.WithLabelValues(resource).Observe(latencyMs)
}

// RecordPageError counts a page failure that aborted a resource.
func RecordPageError(resource string) {
	globalManager.pageErrors.WithLabelValues(resource).Inc()
}

// RecordRecordsIngested adds n ingested records for a stream (geometry or cases).
func RecordRecordsIngested(stream string, n int) {
	globalManager.recordsIngested.WithLabelValues(stream).Add(float64(n))
}

// RecordJoinMisses adds n dropped case records.
func RecordJoinMisses(n int) {
	globalManager.joinMisses.Add(float64(n))
}

// RecordDuplicateArea counts a skipped duplicate geometry record.
func RecordDuplicateArea() {
	globalManager.duplicateAreas.Inc()
}

// UpdateAreasTotal sets the number of areas in the working dataset.
func UpdateAreasTotal(n int) {
	globalManager.areasTotal.Set(float64(n))
}

// RecordFlush counts a snapshot flush and its build duration.
func RecordFlush(reason string, buildMs float64) {
	globalManager.flushes.WithLabelValues(reason).Inc()
	globalManager.snapshotBuildLatMs.Observe(buildMs)
}

// Render Metrics Functions.

// RecordPaint counts a paint pass and its latency.
func RecordPaint(latencyMs float64) {
	globalManager.paints.Inc()
	globalManager.paintLatency.Observe(latencyMs)
}

// RecordPaintSkipped counts a SetData that did not paint.
func RecordPaintSkipped(reason string) {
	globalManager.paintsSkipped.WithLabelValues(reason).Inc()
}

// RecordTokenFetch counts a token fetch by result ("ok" or "error").
func RecordTokenFetch(result string) {
	globalManager.tokenFetches.WithLabelValues(result).Inc()
}

// RecordRenderAuthError counts a 401 reported by the surface.
func RecordRenderAuthError() {
	globalManager.renderAuthError.Inc()
}

// Surface Event Metrics Functions.

// RecordSurfaceEvent counts a surface event by type.
func RecordSurfaceEvent(eventType string) {
	globalManager.surfaceEvents.WithLabelValues(eventType).Inc()
}

// RecordSurfaceEventDuplicate counts an ignored duplicate surface event.
func RecordSurfaceEventDuplicate() {
	globalManager.surfaceEventsDuplicate.Inc()
}

// RecordDispatchLatency records the time spent handling one surface event.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordDispatchError counts a surface event whose handling failed.
func RecordDispatchError() {
	globalManager.dispatchErrors.Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
