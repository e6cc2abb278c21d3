package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the relay pipeline and the
// HTTP front end.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	eventsAdmittedTotal prometheus.Counter
	eventsRejectedTotal *prometheus.CounterVec

	deliveriesTotal         *prometheus.CounterVec
	deliveryAttemptsTotal   prometheus.Counter
	deliveryDurationSeconds prometheus.Histogram

	sessionReconnectsTotal prometheus.Counter
	sessionOpen            prometheus.Gauge

	outboundJobsTotal *prometheus.CounterVec
	fetchRunsTotal    *prometheus.CounterVec
	recordsForwarded  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wagate",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wagate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsAdmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wagate",
			Name:      "events_admitted_total",
			Help:      "Inbound events admitted by the sender gate.",
		}),
		eventsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wagate",
				Name:      "events_rejected_total",
				Help:      "Inbound events rejected by the sender gate, by reason.",
			},
			[]string{"reason"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wagate",
				Name:      "webhook_deliveries_total",
				Help:      "Webhook deliveries by final outcome.",
			},
			[]string{"outcome"},
		),
		deliveryAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wagate",
			Name:      "webhook_delivery_attempts_total",
			Help:      "Individual webhook POST attempts, including retries.",
		}),
		deliveryDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wagate",
			Name:      "webhook_delivery_duration_seconds",
			Help:      "End-to-end webhook delivery duration including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wagate",
			Name:      "session_reconnects_total",
			Help:      "Reconnection attempts scheduled after an unexpected close.",
		}),
		sessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wagate",
			Name:      "session_open",
			Help:      "1 while the transport session is open, 0 otherwise.",
		}),
		outboundJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wagate",
				Name:      "outbound_jobs_total",
				Help:      "Outbound batch jobs by outcome.",
			},
			[]string{"outcome"},
		),
		fetchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wagate",
				Name:      "fetch_runs_total",
				Help:      "Paginated fetcher invocations by outcome.",
			},
			[]string{"outcome"},
		),
		recordsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wagate",
			Name:      "records_forwarded_total",
			Help:      "Search records forwarded to the webhook.",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsAdmittedTotal,
		m.eventsRejectedTotal,
		m.deliveriesTotal,
		m.deliveryAttemptsTotal,
		m.deliveryDurationSeconds,
		m.sessionReconnectsTotal,
		m.sessionOpen,
		m.outboundJobsTotal,
		m.fetchRunsTotal,
		m.recordsForwarded,
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

func (m *Metrics) IncEventAdmitted() {
	if m == nil {
		return
	}
	m.eventsAdmittedTotal.Inc()
}

func (m *Metrics) IncEventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejectedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncDeliveryAttempt() {
	if m == nil {
		return
	}
	m.deliveryAttemptsTotal.Inc()
}

func (m *Metrics) IncDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDurationSeconds.Observe(seconds)
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.sessionReconnectsTotal.Inc()
}

func (m *Metrics) SetSessionOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.sessionOpen.Set(1)
		return
	}
	m.sessionOpen.Set(0)
}

func (m *Metrics) IncOutboundJob(outcome string) {
	if m == nil {
		return
	}
	m.outboundJobsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncFetchRun(outcome string) {
	if m == nil {
		return
	}
	m.fetchRunsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncRecordForwarded() {
	if m == nil {
		return
	}
	m.recordsForwarded.Inc()
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
