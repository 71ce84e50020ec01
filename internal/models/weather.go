package models

import (
	"encoding/json"
	"fmt"
)

// DefaultPlaceName is used when reverse geocoding yields no administrative name.
const DefaultPlaceName = "your area"

// UnknownCondition is the condition reported when the provider omits one.
const UnknownCondition = "Unknown"

// Coordinates is a WGS84 point. Validate with validation.ValidateCoordinates
// before handing it to any client.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns a stable cache key, rounded to roughly 100m.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.3f,%.3f", c.Lat, c.Lon)
}

// WeatherSnapshot is the subset of current conditions used to build a plan.
// Raw holds the provider body verbatim for passthrough endpoints.
type WeatherSnapshot struct {
	Condition     string          `json:"condition"`
	Temperature   float64         `json:"temperature"`
	Precipitation float64         `json:"precipitation"`
	Raw           json.RawMessage `json:"-"`
}

// NewsDigest holds up to the requested number of headlines, most recent first,
// in the order the provider returned them.
type NewsDigest struct {
	Headlines []string        `json:"headlines"`
	Raw       json.RawMessage `json:"-"`
}

// Preferences is an opaque caller-supplied mapping forwarded into the prompt.
type Preferences map[string]interface{}
