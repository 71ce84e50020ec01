package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/daymate-service/internal/cache"
	"github.com/kjstillabower/daymate-service/internal/client"
	"github.com/kjstillabower/daymate-service/internal/models"
	"github.com/kjstillabower/daymate-service/internal/observability"
)

const geocodeCacheType = "geocode"

// CachedGeocoder wraps a Geocoder with cache-aside lookups keyed by rounded
// coordinates. Concurrent misses for one key share a single upstream call.
// Cache failures are logged and counted but never fail a lookup.
type CachedGeocoder struct {
	next  client.Geocoder
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedGeocoder returns next unchanged when c is nil.
func NewCachedGeocoder(next client.Geocoder, c cache.Cache, ttl time.Duration) client.Geocoder {
	if c == nil {
		return next
	}
	return &CachedGeocoder{next: next, cache: c, ttl: ttl}
}

// ReverseGeocode implements client.Geocoder.
func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	key := coords.Key()
	logger := observability.LoggerFromContext(ctx)

	name, ok, err := g.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues(geocodeCacheType, "get").Inc()
		logger.Warn("geocode cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		observability.CacheHitsTotal.WithLabelValues(geocodeCacheType).Inc()
		logger.Debug("geocode cache hit", zap.String("key", key))
		return name, nil
	}
	observability.CacheMissesTotal.WithLabelValues(geocodeCacheType).Inc()

	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		// Detached so one caller going away does not fail the others.
		callCtx := context.WithoutCancel(ctx)
		name, err := g.next.ReverseGeocode(callCtx, coords)
		if err != nil {
			return "", err
		}
		if setErr := g.cache.Set(callCtx, key, name, g.ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues(geocodeCacheType, "set").Inc()
			logger.Warn("geocode cache set failed", zap.String("key", key), zap.Error(setErr))
		}
		return name, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		logger.Debug("geocode lookup coalesced", zap.String("key", key))
	}
	return v.(string), nil
}
