package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes engine and HTTP metrics for scraping. Each Collector owns
// its registry, so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	engineCounts  *prometheus.CounterVec
	engineValues  *prometheus.GaugeVec
	engineLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	namespace = metricNamespace(namespace)
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		engineCounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Engine events such as generated requests and completed rituals.",
		}, []string{"metric", "operation"}),
		engineValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_value",
			Help:      "Last observed engine gauge, such as escalation pressure.",
		}, []string{"metric", "operation"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.engineCounts,
		c.engineValues,
		c.engineLatency,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) addCount(metricName, operation string, value float64) {
	if c == nil || value < 0 {
		return
	}
	c.engineCounts.WithLabelValues(metricName, operation).Add(value)
}

func (c *Collector) setValue(metricName, operation string, value float64) {
	if c == nil {
		return
	}
	c.engineValues.WithLabelValues(metricName, operation).Set(value)
}

func (c *Collector) observeLatency(operation string, latency time.Duration) {
	if c == nil {
		return
	}
	c.engineLatency.WithLabelValues(operation).Observe(latency.Seconds())
}

// metricNamespace lowercases and replaces anything Prometheus rejects.
func metricNamespace(s string) string {
	var b strings.Builder
	for i, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
