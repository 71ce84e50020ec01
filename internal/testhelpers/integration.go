//go:build integration
// +build integration

// Package testhelpers builds live provider clients for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/daymate-service/internal/client"
)

const liveTimeout = 10 * time.Second

// RequireEnv returns the value of key or skips the test when it is unset.
func RequireEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set, skipping integration test", key)
	}
	return v
}

// MemcachedAddr returns MEMCACHED_ADDRS or localhost:11211.
func MemcachedAddr() string {
	if addr := os.Getenv("MEMCACHED_ADDRS"); addr != "" {
		return addr
	}
	return "localhost:11211"
}

// LiveClients holds clients pointed at the real providers.
type LiveClients struct {
	Weather    client.WeatherClient
	Geocoder   client.Geocoder
	News       client.NewsClient
	Completion client.CompletionClient
}

// NewLiveClients builds clients from OPENWEATHER_KEY, NEWSAPI_KEY and
// LLM_API_KEY, skipping the test if any is missing.
func NewLiveClients(t *testing.T) LiveClients {
	t.Helper()
	none := client.BreakerConfig{}
	return LiveClients{
		Weather:  client.NewOpenWeatherClient(RequireEnv(t, "OPENWEATHER_KEY"), "", liveTimeout, none),
		Geocoder: client.NewNominatimClient("", liveTimeout, none),
		News:     client.NewNewsAPIClient(RequireEnv(t, "NEWSAPI_KEY"), "", liveTimeout, none),
		Completion: client.NewChatCompletionClient(client.ProviderHuggingFace, RequireEnv(t, "LLM_API_KEY"),
			"", "", 30*time.Second, none),
	}
}
