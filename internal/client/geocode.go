package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// DefaultNominatimURL is the OpenStreetMap reverse geocoding endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"

// Geocoder resolves coordinates to a place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error)
}

// NominatimClient implements Geocoder. It needs no credential.
type NominatimClient struct {
	apiURL   string
	upstream *upstream
}

func NewNominatimClient(apiURL string, timeout time.Duration, bc BreakerConfig) *NominatimClient {
	if apiURL == "" {
		apiURL = DefaultNominatimURL
	}
	return &NominatimClient{
		apiURL:   apiURL,
		upstream: newUpstream("geocode", timeout, bc),
	}
}

type nominatimResponse struct {
	Address struct {
		City  string `json:"city"`
		Town  string `json:"town"`
		State string `json:"state"`
	} `json:"address"`
}

// ReverseGeocode returns city, town or state, in that order of preference,
// and models.DefaultPlaceName when none is present. A 2xx body that cannot be
// decoded (Nominatim answers {"error": ...} for open water) also yields the
// default. Only transport failures and non-2xx responses are errors.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	req, err := c.buildRequest(ctx, coords)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	body, err := c.upstream.do(ctx, req)
	if err != nil {
		return "", err
	}

	var apiResp nominatimResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.DefaultPlaceName, nil
	}
	return placeName(apiResp), nil
}

func (c *NominatimClient) buildRequest(ctx context.Context, coords models.Coordinates) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("lat", formatCoord(coords.Lat))
	params.Set("lon", formatCoord(coords.Lon))
	params.Set("format", "json")
	params.Set("accept-language", "en")
	baseURL.RawQuery = params.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
}

func placeName(r nominatimResponse) string {
	for _, candidate := range []string{r.Address.City, r.Address.Town, r.Address.State} {
		if name := strings.TrimSpace(candidate); name != "" {
			return name
		}
	}
	return models.DefaultPlaceName
}
