package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// DefaultOpenWeatherURL is the current-conditions endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// WeatherClient fetches current conditions for a point.
type WeatherClient interface {
	FetchWeather(ctx context.Context, coords models.Coordinates) (models.WeatherSnapshot, error)
}

// OpenWeatherClient implements WeatherClient against OpenWeatherMap.
type OpenWeatherClient struct {
	apiKey   string
	apiURL   string
	upstream *upstream
}

// NewOpenWeatherClient returns a client. An empty apiKey is accepted; every
// fetch then fails with ErrNotConfigured before any network call.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration, bc BreakerConfig) *OpenWeatherClient {
	if apiURL == "" {
		apiURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherClient{
		apiKey:   apiKey,
		apiURL:   apiURL,
		upstream: newUpstream("weather", timeout, bc),
	}
}

type openWeatherResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Rain struct {
		OneHour *float64 `json:"1h"`
	} `json:"rain"`
}

// FetchWeather returns the snapshot plus the verbatim provider body.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, coords models.Coordinates) (models.WeatherSnapshot, error) {
	if c.apiKey == "" {
		return models.WeatherSnapshot{}, notConfigured("OPENWEATHER_KEY")
	}

	req, err := c.buildRequest(ctx, coords)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}
	body, err := c.upstream.do(ctx, req)
	if err != nil {
		return models.WeatherSnapshot{}, err
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, c.upstream.malformed(err)
	}
	snap := mapWeather(apiResp)
	snap.Raw = json.RawMessage(body)
	return snap, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, coords models.Coordinates) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("lat", formatCoord(coords.Lat))
	params.Set("lon", formatCoord(coords.Lon))
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
}

// mapWeather applies the "Unknown"/0 defaults for absent fields.
func mapWeather(r openWeatherResponse) models.WeatherSnapshot {
	snap := models.WeatherSnapshot{Condition: models.UnknownCondition}
	if len(r.Weather) > 0 && r.Weather[0].Main != "" {
		snap.Condition = r.Weather[0].Main
	}
	if r.Main.Temp != nil {
		snap.Temperature = *r.Main.Temp
	}
	if r.Rain.OneHour != nil {
		snap.Precipitation = *r.Rain.OneHour
	}
	return snap
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
