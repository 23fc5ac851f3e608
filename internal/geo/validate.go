// Package geo holds coordinate validation, great-circle math and an
// in-process spatial index for driver positions.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"courier/internal/domain"
)

const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

// ErrInvalidCoordinates is returned for malformed or out-of-range positions.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// CoordinateError describes which part of a coordinate pair was rejected.
type CoordinateError struct {
	Ordinate string // "longitude", "latitude" or empty for shape errors
	Reason   string
}

func (e *CoordinateError) Error() string {
	if e.Ordinate == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidCoordinates, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidCoordinates, e.Ordinate, e.Reason)
}

func (e *CoordinateError) Unwrap() error {
	return ErrInvalidCoordinates
}

// ValidatePair checks a [longitude, latitude] pair and returns it as a point.
func ValidatePair(coords []float64) (domain.GeoPoint, error) {
	if len(coords) != 2 {
		return domain.GeoPoint{}, &CoordinateError{
			Reason: fmt.Sprintf("expected [longitude, latitude], got %d ordinates", len(coords)),
		}
	}
	return NewPoint(coords[0], coords[1])
}

// NewPoint validates and builds a point.
func NewPoint(lon, lat float64) (domain.GeoPoint, error) {
	if err := checkOrdinate("longitude", lon, MinLongitude, MaxLongitude); err != nil {
		return domain.GeoPoint{}, err
	}
	if err := checkOrdinate("latitude", lat, MinLatitude, MaxLatitude); err != nil {
		return domain.GeoPoint{}, err
	}
	return domain.GeoPoint{Longitude: lon, Latitude: lat}, nil
}

// ParsePair parses the "lon,lat" form used in query strings.
func ParsePair(s string) (domain.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.GeoPoint{}, &CoordinateError{
			Reason: fmt.Sprintf("expected \"longitude,latitude\", got %q", s),
		}
	}
	lon, err := parseOrdinate("longitude", parts[0])
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lat, err := parseOrdinate("latitude", parts[1])
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return NewPoint(lon, lat)
}

// ParseOrdinates parses separate longitude and latitude strings.
func ParseOrdinates(lonRaw, latRaw string) (domain.GeoPoint, error) {
	lon, err := parseOrdinate("longitude", lonRaw)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lat, err := parseOrdinate("latitude", latRaw)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return NewPoint(lon, lat)
}

func parseOrdinate(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &CoordinateError{Ordinate: name, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &CoordinateError{Ordinate: name, Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return v, nil
}

func checkOrdinate(name string, v, min, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &CoordinateError{Ordinate: name, Reason: "is not a finite number"}
	}
	if v < min {
		return &CoordinateError{Ordinate: name, Reason: fmt.Sprintf("%g is below minimum %g", v, min)}
	}
	if v > max {
		return &CoordinateError{Ordinate: name, Reason: fmt.Sprintf("%g is above maximum %g", v, max)}
	}
	return nil
}
