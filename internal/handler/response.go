package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/geo"
	"courier/internal/repository"
	"courier/internal/service"
)

var errNonFinite = errors.New("value must be a finite number")

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Server errors are attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondBadRequest sends a 400 with a fixed message.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidDeliveryID),
		errors.Is(err, service.ErrInvalidTelemetry),
		errors.Is(err, service.ErrInvalidLocationSource),
		errors.Is(err, service.ErrInvalidDistance),
		errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrInvalidDriverStatus),
		errors.Is(err, service.ErrInvalidDeliveryStatus),
		errors.Is(err, service.ErrInvalidRouteMode),
		errors.Is(err, service.ErrInvalidRegistration),
		errors.Is(err, service.ErrInvalidDelivery):
		return http.StatusBadRequest

	// Authentication errors
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrDeliveryNotAssignedToDriver):
		return http.StatusForbidden

	// Conflict errors
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrInvalidDeliveryTransition),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// queryFloat reads an optional float query parameter.
func queryFloat(c *gin.Context, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNonFinite
	}
	return v, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// queryTime reads an optional RFC3339 query parameter. A missing value
// yields the zero time.
func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
