// Package metrics provides Prometheus metrics for adgate
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Remote config metrics
	ConfigFetches       *prometheus.CounterVec
	ConfigFetchDuration *prometheus.HistogramVec
	ConfigReady         prometheus.Gauge
	ConfigReadyLatency  prometheus.Histogram
	ConfigCorrections   *prometheus.CounterVec
	DeferredActions     *prometheus.CounterVec

	// Idle trigger metrics
	IdleFires       prometheus.Counter
	IdleCompletions *prometheus.CounterVec

	// Ad metrics
	AdEvents      *prometheus.CounterVec
	AdRevenue     *prometheus.CounterVec
	AdLoadRetries *prometheus.CounterVec

	// System metrics
	RateLimitRejected prometheus.Counter
	AuthFailures      prometheus.Counter
}

// NewMetrics creates metrics registered with the default registry
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered with reg
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "adgate"
	}

	m := &Metrics{
		// Request metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		// Remote config metrics
		ConfigFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remoteconfig_fetches_total",
				Help:      "Remote config fetches by outcome",
			},
			[]string{"outcome"},
		),
		ConfigFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remoteconfig_fetch_duration_seconds",
				Help:      "Remote config fetch duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		ConfigReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "remoteconfig_ready",
				Help:      "Remote config readiness (0=pending, 1=ready)",
			},
		),
		ConfigReadyLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remoteconfig_ready_latency_seconds",
				Help:      "Time from startup until remote config became ready",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10, 30},
			},
		),
		ConfigCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remoteconfig_corrections_total",
				Help:      "Remote values clamped or replaced by range validation",
			},
			[]string{"key"},
		),
		DeferredActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remoteconfig_deferred_actions_total",
				Help:      "Actions run after readiness by result",
			},
			[]string{"result"},
		),

		// Idle trigger metrics
		IdleFires: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_fires_total",
				Help:      "Total idle trigger fires",
			},
		),
		IdleCompletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_completions_total",
				Help:      "Idle action completions by result",
			},
			[]string{"result"},
		),

		// Ad metrics
		AdEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_events_total",
				Help:      "Ad SDK lifecycle events",
			},
			[]string{"format", "kind"},
		),
		AdRevenue: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_revenue_total",
				Help:      "Ad revenue in currency units",
			},
			[]string{"format", "currency"},
		),
		AdLoadRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_load_retries_total",
				Help:      "Ad loads scheduled for retry after a failure",
			},
			[]string{"format"},
		),

		// System metrics
		RateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejected_total",
				Help:      "Total requests rejected due to rate limiting",
			},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total authentication failures",
			},
		),
	}

	// Register all metrics
	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.ConfigFetches,
		m.ConfigFetchDuration,
		m.ConfigReady,
		m.ConfigReadyLatency,
		m.ConfigCorrections,
		m.DeferredActions,
		m.IdleFires,
		m.IdleCompletions,
		m.AdEvents,
		m.AdRevenue,
		m.AdLoadRetries,
		m.RateLimitRejected,
		m.AuthFailures,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the given gatherer
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ObserveFetch records a remote config fetch
func (m *Metrics) ObserveFetch(outcome string, elapsed time.Duration) {
	m.ConfigFetches.WithLabelValues(outcome).Inc()
	m.ConfigFetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveReady records the Pending to Ready transition
func (m *Metrics) ObserveReady(sinceStart time.Duration) {
	m.ConfigReady.Set(1)
	m.ConfigReadyLatency.Observe(sinceStart.Seconds())
}

// ObserveCorrection records a remote value corrected by validation
func (m *Metrics) ObserveCorrection(key string) {
	m.ConfigCorrections.WithLabelValues(key).Inc()
}

// ObserveDeferred records a deferred action run
func (m *Metrics) ObserveDeferred(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.DeferredActions.WithLabelValues(result).Inc()
}

// ObserveIdleFire records an idle trigger fire
func (m *Metrics) ObserveIdleFire() {
	m.IdleFires.Inc()
}

// ObserveIdleCompletion records how an idle action finished
func (m *Metrics) ObserveIdleCompletion(result string) {
	m.IdleCompletions.WithLabelValues(result).Inc()
}

// ObserveAdEvent records an ad lifecycle event
func (m *Metrics) ObserveAdEvent(format, kind string) {
	m.AdEvents.WithLabelValues(format, kind).Inc()
}

// ObserveRevenue records revenue from a paid event
func (m *Metrics) ObserveRevenue(format, currency string, value float64) {
	if value <= 0 {
		return
	}
	m.AdRevenue.WithLabelValues(format, currency).Add(value)
}

// ObserveLoadRetry records a scheduled load retry
func (m *Metrics) ObserveLoadRetry(format string) {
	m.AdLoadRetries.WithLabelValues(format).Inc()
}
