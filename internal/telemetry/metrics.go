package telemetry

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffeeshop"

// Metrics holds the service's Prometheus collectors. It records business
// outcomes for the order service and retry/breaker events for the
// resilience policies.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	orders        *prometheus.CounterVec
	compensations *prometheus.CounterVec
	events        *prometheus.CounterVec
	retries       *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	requests      *prometheus.CounterVec
	latencyMS     *prometheus.HistogramVec
}

func NewMetrics(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order creation attempts by outcome.",
		}, []string{"outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_compensations_total",
			Help:      "Refunds issued for charges whose order could not be stored.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Integration events handed to the broker.",
		}, []string{"topic", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_retries_total",
			Help:      "Retried calls to external services.",
		}, []string{"dependency"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"dependency"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.orders, m.compensations, m.events, m.retries, m.breakerState, m.requests, m.latencyMS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveOrder(outcome string) {
	m.orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompensation(outcome string) {
	m.compensations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEventPublished(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) Retry(name string, attempt int, delay time.Duration, err error) {
	m.retries.WithLabelValues(name).Inc()
	m.logger.Warn("retrying external call",
		"dependency", name, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
}

func (m *Metrics) StateChange(name, from, to string) {
	m.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
	switch to {
	case "open":
		m.logger.Warn("circuit breaker opened", "dependency", name, "from", from)
	default:
		m.logger.Info("circuit breaker state changed", "dependency", name, "from", from, "to", to)
	}
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// Middleware counts requests per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.latencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
