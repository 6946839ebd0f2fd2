package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors served on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestDur     *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	answersTotal   *prometheus.CounterVec
	confidence     prometheus.Histogram
}

// NewMetrics registers the HTTP and answer collectors on a fresh registry
// along with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "denguex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "denguex",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "endpoint"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "denguex",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Requests currently being served.",
		}),
		answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "denguex",
			Name:      "answers_total",
			Help:      "Answers served over HTTP by outcome and urgency.",
		}, []string{"outcome", "urgency"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "denguex",
			Name:      "answer_confidence",
			Help:      "Confidence of answers served over HTTP.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.65, 0.7, 0.8, 0.9, 1.0},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDur,
		m.activeRequests,
		m.answersTotal,
		m.confidence,
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count, latency and concurrency.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			err := next(c)
			if err != nil {
				// Let echo write the error so the recorded status is final.
				c.Error(err)
				err = nil
			}

			endpoint := normalizePath(c.Path())
			method := c.Request().Method
			m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Response().Status)).Inc()
			m.requestDur.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) observeAnswer(outcome, urgency string, confidence float64) {
	m.answersTotal.WithLabelValues(outcome, urgency).Inc()
	m.confidence.Observe(confidence)
}

// normalizePath keeps label cardinality bounded. Unmatched routes share one
// label instead of carrying the raw URL.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
