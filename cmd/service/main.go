package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/daymate-service/internal/auth"
	"github.com/kjstillabower/daymate-service/internal/cache"
	"github.com/kjstillabower/daymate-service/internal/client"
	"github.com/kjstillabower/daymate-service/internal/config"
	httphandler "github.com/kjstillabower/daymate-service/internal/http"
	"github.com/kjstillabower/daymate-service/internal/lifecycle"
	"github.com/kjstillabower/daymate-service/internal/observability"
	"github.com/kjstillabower/daymate-service/internal/service"
	"github.com/kjstillabower/daymate-service/internal/store"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	handler, err := buildHandler(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Plan generation may take up to the sum of the provider timeouts.
		WriteTimeout: cfg.OpenWeatherTimeout + cfg.NewsAPITimeout + cfg.CompletionTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	shutdown(srv, cfg, logger)
}

// buildHandler constructs every dependency from cfg and returns the routed
// handler. Resources needing cleanup are registered with lifecycle.
func buildHandler(cfg *config.Config, logger *zap.Logger) (http.Handler, error) {
	bc := client.BreakerConfig{
		Enabled:          cfg.BreakerEnabled,
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}
	weatherClient := client.NewOpenWeatherClient(cfg.OpenWeatherKey, cfg.OpenWeatherURL, cfg.OpenWeatherTimeout, bc)
	nominatim := client.NewNominatimClient(cfg.NominatimURL, cfg.NominatimTimeout, bc)
	newsClient := client.NewNewsAPIClient(cfg.NewsAPIKey, cfg.NewsAPIURL, cfg.NewsAPITimeout, bc)
	completion := client.NewChatCompletionClient(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.CompletionTimeout, bc)
	warnUnconfigured(cfg, completion, logger)
	if bc.Enabled {
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	geocodeCache, err := buildCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	planStore, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	plans := service.NewPlanService(service.Dependencies{
		Weather:        weatherClient,
		Geocoder:       service.NewCachedGeocoder(nominatim, geocodeCache, cfg.CacheTTL),
		News:           newsClient,
		Completion:     completion,
		Store:          planStore,
		HeadlineLimit:  cfg.HeadlineLimit,
		PersistTimeout: cfg.PersistTimeout,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterWindowGauges(cfg.MetricsWindow)

	h := httphandler.NewHandler(plans, auth.NewTokenAuthenticator(cfg.SecretKey), logger)
	return httphandler.NewRouter(h, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		FrontendURL:    cfg.FrontendURL,
	}), nil
}

func buildCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached unreachable, geocode lookups will bypass cache", zap.Error(err))
		}
		lifecycle.RegisterCloser("memcached", mc)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	default:
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
		return cache.NewInMemoryCache(cfg.CacheMaxEntries), nil
	}
}

func buildStore(cfg *config.Config, logger *zap.Logger) (store.PlanStore, error) {
	switch cfg.StoreBackend {
	case store.BackendSQLite:
		s, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("plan store: %w", err)
		}
		lifecycle.RegisterCloser("plan store", s)
		logger.Info("plan store: sqlite", zap.String("path", cfg.StorePath))
		return s, nil
	default:
		logger.Info("plan store: memory")
		return store.NewMemoryStore(), nil
	}
}

// warnUnconfigured logs credentials that will make requests fail. Startup
// continues so unaffected endpoints stay available.
func warnUnconfigured(cfg *config.Config, completion *client.ChatCompletionClient, logger *zap.Logger) {
	if cfg.OpenWeatherKey == "" {
		logger.Warn("OPENWEATHER_KEY not set; weather and plan requests will fail")
	}
	if cfg.NewsAPIKey == "" {
		logger.Warn("NEWSAPI_KEY not set; news and plan requests will fail")
	}
	if err := completion.CheckConfigured(); err != nil {
		logger.Warn("completion backend unusable; plan requests will fail", zap.Error(err))
	}
	if cfg.SecretKey == "" {
		logger.Warn("SECRET_KEY not set; all callers are anonymous and history is unavailable")
	}
}

func shutdown(srv *http.Server, cfg *config.Config, logger *zap.Logger) {
	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(logger, cfg.MetricsWindow); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	lifecycle.CloseAll(logger)
	logger.Info("shutdown complete")
}
