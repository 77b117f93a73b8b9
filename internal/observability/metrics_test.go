package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsProcessingCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncRecordProcessed("Succeeded")
	metrics.IncRecordProcessed("failed")
	metrics.IncRecordProcessed("failed")
	metrics.ObserveFlowExecution("user", 120*time.Millisecond)
	metrics.IncWorkerInFlight()
	metrics.DecWorkerInFlight()
	metrics.IncBatchStatusChanged("complete")
	metrics.IncConfigDecryptFailure("flow")
	metrics.AddSweepRepublished(3)
	metrics.AddSweepRepublished(0)
	metrics.IncArtifactIngested("fax", "")

	if got := testutil.ToFloat64(metrics.recordsProcessedTotal.WithLabelValues("succeeded")); got != 1 {
		t.Fatalf("records_processed_total{succeeded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.recordsProcessedTotal.WithLabelValues("failed")); got != 2 {
		t.Fatalf("records_processed_total{failed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.batchStatusChanges.WithLabelValues("complete")); got != 1 {
		t.Fatalf("batch_status_changes_total{complete} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.configDecryptFailures.WithLabelValues("flow")); got != 1 {
		t.Fatalf("config_decrypt_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sweepRepublishedTotal); got != 3 {
		t.Fatalf("sweep_republished_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.artifactsIngestedTotal.WithLabelValues("fax", "unknown")); got != 1 {
		t.Fatalf("artifacts_ingested_total = %v, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncRecordProcessed("failed")
	metrics.ObserveFlowExecution("system", time.Second)
	metrics.IncWorkerInFlight()
	metrics.IncConfigDecryptFailure("fax_line")
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
