package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedService is the label value used for requests that do not
// resolve to any configured route, ensuring bounded cardinality.
const unmatchedService = "unmatched"

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	authFailures      *prometheus.CounterVec
	rateLimitRejected *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	fallbackResponses *prometheus.CounterVec
	buildInfo         *prometheus.GaugeVec
	startTime         prometheus.Gauge
	registry          *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "service", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "service", "status"},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected credentials by failure kind",
		},
		[]string{"kind"},
	)

	m.rateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"category"},
	)

	m.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	m.fallbackResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_responses_total",
			Help:      "Total number of fallback responses served for open circuits",
		},
		[]string{"service"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the gateway",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the gateway in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.authFailures,
		m.rateLimitRejected,
		m.breakerState,
		m.fallbackResponses,
		m.buildInfo,
		m.startTime,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.startTime.SetToCurrentTime()

	return m
}

// RecordRequest records a completed HTTP request. The service parameter
// is the resolved downstream service name, not the raw request path, to
// prevent cardinality explosion.
func (m *Metrics) RecordRequest(method, service string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, service, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, service, statusStr).Observe(duration.Seconds())
}

// RecordAuthFailure records a rejected credential by failure kind
// (malformed, bad_signature, expired, unsupported, missing).
func (m *Metrics) RecordAuthFailure(kind string) {
	m.authFailures.WithLabelValues(kind).Inc()
}

// RecordRateLimitRejection records a request rejected by the limiter.
func (m *Metrics) RecordRateLimitRejection(category string) {
	m.rateLimitRejected.WithLabelValues(category).Inc()
}

// SetBreakerState sets the circuit breaker state gauge for a service.
func (m *Metrics) SetBreakerState(service string, state int) {
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// RecordFallback records a fallback response served for a service.
func (m *Metrics) RecordFallback(service string) {
	m.fallbackResponses.WithLabelValues(service).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// serviceLabelKey carries a mutable holder so that inner stages can
// report the resolved service name back to the metrics middleware even
// though they operate on derived requests.
const serviceLabelKey contextKey = "service_label"

type serviceLabel struct {
	mu sync.Mutex
	v  string
}

// SetServiceLabel records the resolved service name for the request.
// It is a no-op when the metrics middleware is not installed.
func SetServiceLabel(ctx context.Context, service string) {
	holder, ok := ctx.Value(serviceLabelKey).(*serviceLabel)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.v = service
	holder.mu.Unlock()
}

func serviceLabelFrom(ctx context.Context) string {
	holder, ok := ctx.Value(serviceLabelKey).(*serviceLabel)
	if !ok {
		return ""
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return holder.v
}

// MetricsMiddleware returns a middleware that records request metrics.
// The service label is reported by the routing stage via SetServiceLabel
// so that raw request paths never become label values.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			holder := &serviceLabel{}
			r = r.WithContext(context.WithValue(r.Context(), serviceLabelKey, holder))

			rw := &metricsResponseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			service := serviceLabelFrom(r.Context())
			if service == "" {
				service = unmatchedService
			}

			metrics.RecordRequest(r.Method, service, rw.status, time.Since(start))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for streaming responses.
func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
