package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/daymate-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Plan requests are dominated by the completion call.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Outbound provider calls by provider (weather, geocode, news, completion) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: completion p95 approaching its timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Provider failures by category (see client.CategorizeError).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Plan pipeline runs by outcome (success, degraded, failed).
	PlanRunsTotal *prometheus.CounterVec

	// Time spent in each pipeline step.
	PlanStepDuration *prometheus.HistogramVec

	// Completions that could not be decoded and were served as raw text.
	PlanParseDegradedTotal prometheus.Counter

	// Best-effort persistence failures. Non-zero means users are missing history entries.
	PlanPersistFailuresTotal prometheus.Counter

	// Cache hits/misses by cache type (geocode).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of outbound provider calls",
		},
		[]string{"provider", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Outbound provider latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Outbound provider failures by error category",
		},
		[]string{"provider", "category"},
	)
	PlanRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planRunsTotal",
			Help: "Plan pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	PlanStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planStepDurationSeconds",
			Help:    "Plan pipeline step latency in seconds",
			Buckets: []float64{.001, .01, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"step"},
	)
	PlanParseDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "planParseDegradedTotal",
			Help: "Completions served as raw text because they were not a JSON object",
		},
	)
	PlanPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "planPersistFailuresTotal",
			Help: "Plan records that could not be saved",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"cacheType", "operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		PlanRunsTotal, PlanStepDuration, PlanParseDegradedTotal, PlanPersistFailuresTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RegisterWindowGauges registers sliding-window gauges over plan outcomes.
// Call once from main; later calls are no-ops.
func RegisterWindowGauges(window time.Duration) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "planFailuresInWindow",
					Help: "Failed plan runs in the sliding window",
				},
				func() float64 { return float64(traffic.Count(traffic.OutcomeFailed, window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "planDegradedInWindow",
					Help: "Plans served as raw text in the sliding window",
				},
				func() float64 { return float64(traffic.Count(traffic.OutcomeDegraded, window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(traffic.Count(traffic.OutcomeDenied, window)) },
			),
		)
	})
}

// RecordUpstreamCall records one outbound provider call.
func RecordUpstreamCall(provider, status string, d time.Duration) {
	UpstreamCallsTotal.WithLabelValues(provider, status).Inc()
	UpstreamDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// RecordCircuitBreakerTransition counts a breaker state change and updates the state gauge.
func RecordCircuitBreakerTransition(provider, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(provider, from, to).Inc()
	CircuitBreakerState.WithLabelValues(provider).Set(circuitBreakerStateValue(to))
}

func circuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
