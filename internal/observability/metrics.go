package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sendqueue"

var _ events.Sink = (*Metrics)(nil)

// Metrics stores Prometheus collectors used by the runners and the health server.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	eventsTotal         *prometheus.CounterVec
	queueRowsTotal      *prometheus.CounterVec
	warmupQuotaUsed     *prometheus.GaugeVec
	runDuration         *prometheus.HistogramVec
	runnerInflight      *prometheus.GaugeVec
	lockSkippedTotal    *prometheus.CounterVec
	runFailuresTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Total number of queue and warm-up events emitted.",
			},
			[]string{"event"},
		),
		queueRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queue_rows_total",
				Help:      "Queue rows written or removed grouped by operation.",
			},
			[]string{"operation"},
		),
		warmupQuotaUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "warmup_quota_used_ratio",
				Help:      "Used over allowed quota of the processing warm-up schedule per server.",
			},
			[]string{"server"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "runner_tick_duration_seconds",
				Help:      "Duration of one runner tick in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"runner"},
		),
		runnerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "runner_inflight",
				Help:      "Current number of keys being processed grouped by runner.",
			},
			[]string{"runner"},
		),
		lockSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runner_lock_skipped_total",
				Help:      "Keys skipped because another worker held their lock.",
			},
			[]string{"runner"},
		),
		runFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runner_failures_total",
				Help:      "Keys whose processing returned an error.",
			},
			[]string{"runner"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsTotal,
		m.queueRowsTotal,
		m.warmupQuotaUsed,
		m.runDuration,
		m.runnerInflight,
		m.lockSkippedTotal,
		m.runFailuresTotal,
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

// Emit counts every event and derives queue and warm-up gauges from payloads.
func (m *Metrics) Emit(_ context.Context, event events.Event) {
	if m == nil || event == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event.Name()).Inc()

	switch e := event.(type) {
	case events.QueuePopulated:
		m.queueRowsTotal.WithLabelValues("queued").Add(float64(e.Queued))
	case events.SubscribersFiltered:
		m.queueRowsTotal.WithLabelValues("filtered").Add(float64(e.Count))
	case events.GiveupsRequeued:
		m.queueRowsTotal.WithLabelValues("requeued").Add(float64(e.Count))
	case events.WarmupQuotaRecomputed:
		ratio := 0.0
		if e.Allowed > 0 {
			ratio = float64(e.Used) / float64(e.Allowed)
		}
		m.warmupQuotaUsed.WithLabelValues(strconv.FormatInt(e.ServerID, 10)).Set(ratio)
	case events.WarmupPlanCompleted:
		m.warmupQuotaUsed.DeleteLabelValues(strconv.FormatInt(e.ServerID, 10))
	}
}

func (m *Metrics) ObserveTickDuration(runner string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.runDuration.WithLabelValues(normalizeRunner(runner)).Observe(seconds)
}

func (m *Metrics) IncRunnerInFlight(runner string) {
	if m == nil {
		return
	}
	m.runnerInflight.WithLabelValues(normalizeRunner(runner)).Inc()
}

func (m *Metrics) DecRunnerInFlight(runner string) {
	if m == nil {
		return
	}
	m.runnerInflight.WithLabelValues(normalizeRunner(runner)).Dec()
}

func (m *Metrics) IncLockSkipped(runner string) {
	if m == nil {
		return
	}
	m.lockSkippedTotal.WithLabelValues(normalizeRunner(runner)).Inc()
}

func (m *Metrics) IncRunFailure(runner string) {
	if m == nil {
		return
	}
	m.runFailuresTotal.WithLabelValues(normalizeRunner(runner)).Inc()
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

func normalizeRunner(runner string) string {
	normalized := strings.ToLower(strings.TrimSpace(runner))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
