package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// ErrInvalidCoordinates is the parent of every coordinate validation failure.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidCoordinates)

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = fmt.Errorf("%w: lon must be between -180 and 180", ErrInvalidCoordinates)

// ErrCoordinateMissing is returned when lat or lon is absent or not a number.
var ErrCoordinateMissing = fmt.Errorf("%w: lat and lon are required numbers", ErrInvalidCoordinates)

// ErrInvalidRequest wraps struct validation failures on request bodies.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New()

// ValidateCoordinates rejects NaN, infinities and out-of-range values.
func ValidateCoordinates(lat, lon float64) (models.Coordinates, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return models.Coordinates{}, ErrCoordinateMissing
	}
	if lat < -90 || lat > 90 {
		return models.Coordinates{}, ErrLatitudeOutOfRange
	}
	if lon < -180 || lon > 180 {
		return models.Coordinates{}, ErrLongitudeOutOfRange
	}
	return models.Coordinates{Lat: lat, Lon: lon}, nil
}

// ParseCoordinates parses query-string values and validates them.
func ParseCoordinates(latStr, lonStr string) (models.Coordinates, error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return models.Coordinates{}, ErrCoordinateMissing
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coordinates{}, ErrCoordinateMissing
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.Coordinates{}, ErrCoordinateMissing
	}
	return ValidateCoordinates(lat, lon)
}

// Struct runs `validate` struct tags on v. The returned error wraps
// ErrInvalidRequest and names the failing fields.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return field + " must be >= " + fe.Param()
	case "lte":
		return field + " must be <= " + fe.Param()
	default:
		return field + " failed " + fe.Tag()
	}
}
