package http

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/daymate-service/internal/observability"
)

// RouterConfig holds the transport settings for NewRouter.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	FrontendURL    string
}

// NewRouter wires the service routes. /api routes are rate limited; the
// weather and news passthroughs also get RequestTimeout. The result is
// wrapped in a CORS policy for FrontendURL.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.HandleFunc("/plan", h.PostPlan).Methods(http.MethodPost)
	api.HandleFunc("/plan/history", h.GetPlanHistory).Methods(http.MethodGet)

	passthrough := api.NewRoute().Subrouter()
	passthrough.Use(TimeoutMiddleware(cfg.RequestTimeout))
	passthrough.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	passthrough.HandleFunc("/news", h.GetNews).Methods(http.MethodGet)

	return corsHandler(cfg.FrontendURL)(router)
}

func corsHandler(origin string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{origin}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Correlation-ID"}),
		handlers.ExposedHeaders([]string{"X-Correlation-ID"}),
	)
}
