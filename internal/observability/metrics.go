package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionCacheHits   prometheus.Counter
	decisionCacheMisses prometheus.Counter
	decisionsEvaluated  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helios_http_requests_total",
		Help: "Number of HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helios_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helios_authz_decision_cache_hits_total",
		Help: "Access decisions served from the decision cache.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helios_authz_decision_cache_misses_total",
		Help: "Access checks that required a fresh evaluation.",
	})
	evaluated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helios_authz_decisions_evaluated_total",
		Help: "Fresh access evaluations by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, cacheHits, cacheMisses, evaluated)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		decisionCacheHits:   cacheHits,
		decisionCacheMisses: cacheMisses,
		decisionsEvaluated:  evaluated,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// DecisionCacheHit counts a decision served from cache.
func (m *Metrics) DecisionCacheHit() {
	if m != nil {
		m.decisionCacheHits.Inc()
	}
}

// DecisionCacheMiss counts a cache miss on the decision path.
func (m *Metrics) DecisionCacheMiss() {
	if m != nil {
		m.decisionCacheMisses.Inc()
	}
}

// DecisionEvaluated counts a fresh evaluation by outcome.
func (m *Metrics) DecisionEvaluated(allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisionsEvaluated.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
