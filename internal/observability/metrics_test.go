package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match usage across the
// client, http, service and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/plan", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/plan").Observe(0.01)
	RecordUpstreamCall("weather", "success", 100*time.Millisecond)
	UpstreamErrorsTotal.WithLabelValues("completion", "timeout").Inc()
	PlanRunsTotal.WithLabelValues("degraded").Inc()
	PlanStepDuration.WithLabelValues("completion").Observe(1)
	PlanParseDegradedTotal.Inc()
	PlanPersistFailuresTotal.Inc()
	CacheHitsTotal.WithLabelValues("geocode").Inc()
	CacheMissesTotal.WithLabelValues("geocode").Inc()
	CacheErrorsTotal.WithLabelValues("geocode", "get").Inc()
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("news", "closed", "open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("news")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
	RecordCircuitBreakerTransition("news", "open", "half-open")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("news")); got != 1 {
		t.Errorf("state gauge = %v, want 1", got)
	}
	RecordCircuitBreakerTransition("news", "half-open", "closed")
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("news")); got != 0 {
		t.Errorf("state gauge = %v, want 0", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format including the window gauges.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RegisterWindowGauges(time.Minute)
	RegisterWindowGauges(time.Minute) // second call must not panic on duplicate registration
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "planFailuresInWindow", "rateLimitRejectsInWindow"} {
		if !strings.Contains(body, name) {
			t.Errorf("MetricsHandler response missing %s", name)
		}
	}
}
