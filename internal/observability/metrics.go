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

// Metrics stores Prometheus collectors used by the publisher, consumers, and
// the ops HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	receiversPublishedTotal *prometheus.CounterVec
	publishFailedTotal      *prometheus.CounterVec
	publishDuration         *prometheus.HistogramVec
	messagesConsumedTotal   *prometheus.CounterVec
	remindersPublishedTotal prometheus.Counter
	breakerOpen             *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petbooking_notifier",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "petbooking_notifier",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		receiversPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petbooking_notifier",
				Name:      "receivers_published_total",
				Help:      "Total number of notification receivers published, grouped by routing key.",
			},
			[]string{"routing_key"},
		),
		publishFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petbooking_notifier",
				Name:      "publish_failed_total",
				Help:      "Total number of failed batch publishes grouped by routing key.",
			},
			[]string{"routing_key"},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "petbooking_notifier",
				Name:      "publish_duration_seconds",
				Help:      "Batch publish duration in seconds grouped by routing key.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"routing_key"},
		),
		messagesConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petbooking_notifier",
				Name:      "messages_consumed_total",
				Help:      "Total number of consumed messages grouped by queue and outcome.",
			},
			[]string{"queue", "outcome"},
		),
		remindersPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "petbooking_notifier",
				Name:      "reminders_published_total",
				Help:      "Total number of health-book visit reminders published.",
			},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "petbooking_notifier",
				Name:      "circuit_breaker_open",
				Help:      "Whether the connection circuit breaker is open (1) per connection role.",
			},
			[]string{"role"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.receiversPublishedTotal,
		m.publishFailedTotal,
		m.publishDuration,
		m.messagesConsumedTotal,
		m.remindersPublishedTotal,
		m.breakerOpen,
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

func (m *Metrics) AddPublished(routingKey string, receivers int) {
	if m == nil || receivers <= 0 {
		return
	}
	m.receiversPublishedTotal.WithLabelValues(normalizeLabel(routingKey)).Add(float64(receivers))
}

func (m *Metrics) IncPublishFailed(routingKey string) {
	if m == nil {
		return
	}
	m.publishFailedTotal.WithLabelValues(normalizeLabel(routingKey)).Inc()
}

func (m *Metrics) ObservePublishDuration(routingKey string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.publishDuration.WithLabelValues(normalizeLabel(routingKey)).Observe(seconds)
}

func (m *Metrics) IncConsumed(queue string, outcome string) {
	if m == nil {
		return
	}
	m.messagesConsumedTotal.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncRemindersPublished(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.remindersPublishedTotal.Add(float64(count))
}

func (m *Metrics) SetBreakerOpen(role string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.breakerOpen.WithLabelValues(normalizeLabel(role)).Set(value)
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
