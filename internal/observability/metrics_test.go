package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPipelineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncEventAdmitted()
	metrics.IncEventRejected("Stale")
	metrics.IncDeliveryAttempt()
	metrics.IncDeliveryAttempt()
	metrics.IncDelivery("success")
	metrics.ObserveDeliveryDuration(120 * time.Millisecond)
	metrics.IncReconnect()
	metrics.SetSessionOpen(true)
	metrics.IncOutboundJob("sent")
	metrics.IncFetchRun("completed")
	metrics.IncRecordForwarded()

	if got := testutil.ToFloat64(metrics.eventsAdmittedTotal); got != 1 {
		t.Fatalf("events_admitted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.eventsRejectedTotal.WithLabelValues("stale")); got != 1 {
		t.Fatalf("events_rejected_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal); got != 2 {
		t.Fatalf("webhook_delivery_attempts_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.deliveriesTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("webhook_deliveries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sessionOpen); got != 1 {
		t.Fatalf("session_open = %v, want 1", got)
	}

	metrics.SetSessionOpen(false)
	if got := testutil.ToFloat64(metrics.sessionOpen); got != 0 {
		t.Fatalf("session_open = %v, want 0", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
