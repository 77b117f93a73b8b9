package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API, worker and sweeper.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	recordsProcessedTotal  *prometheus.CounterVec
	flowExecutionDuration  *prometheus.HistogramVec
	workerInflight         prometheus.Gauge
	batchStatusChanges     *prometheus.CounterVec
	configDecryptFailures  *prometheus.CounterVec
	sweepRepublishedTotal  prometheus.Counter
	artifactsIngestedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "import_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		recordsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "records_processed_total",
				Help:      "Total number of record dispatches grouped by outcome.",
			},
			[]string{"outcome"},
		),
		flowExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "import_engine",
				Name:      "flow_execution_duration_seconds",
				Help:      "Flow execution duration in seconds grouped by flow type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"flow_type"},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "import_engine",
				Name:      "worker_inflight",
				Help:      "Current number of records being dispatched by the worker.",
			},
		),
		batchStatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "batch_status_changes_total",
				Help:      "Total number of batch status transitions grouped by the status entered.",
			},
			[]string{"status"},
		),
		configDecryptFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "config_decrypt_failures_total",
				Help:      "Total number of encrypted configs that failed to decrypt or parse.",
			},
			[]string{"kind"},
		),
		sweepRepublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "sweep_republished_total",
				Help:      "Total number of records handed back to the worker by the sweeper.",
			},
		),
		artifactsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "import_engine",
				Name:      "artifacts_ingested_total",
				Help:      "Total number of inbound fax and FTP artifacts grouped by source and batch outcome.",
			},
			[]string{"source", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.recordsProcessedTotal,
		m.flowExecutionDuration,
		m.workerInflight,
		m.batchStatusChanges,
		m.configDecryptFailures,
		m.sweepRepublishedTotal,
		m.artifactsIngestedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncRecordProcessed(outcome string) {
	if m == nil {
		return
	}
	m.recordsProcessedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveFlowExecution(flowType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.flowExecutionDuration.WithLabelValues(normalizeLabel(flowType)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncBatchStatusChanged(status string) {
	if m == nil {
		return
	}
	m.batchStatusChanges.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncConfigDecryptFailure(kind string) {
	if m == nil {
		return
	}
	m.configDecryptFailures.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) AddSweepRepublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepRepublishedTotal.Add(float64(n))
}

func (m *Metrics) IncArtifactIngested(source string, outcome string) {
	if m == nil {
		return
	}
	m.artifactsIngestedTotal.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
