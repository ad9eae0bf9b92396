package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the http layer. Each
// handler owns its registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "books",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of processed http requests.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "books",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of http requests processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "books",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of http requests being processed.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one processed request.
func (m *Metrics) Observe(method string, code int, elapsed time.Duration) {
	status := strconv.Itoa(code)
	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method, status).Observe(elapsed.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
