package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/middleware"
	"courier/internal/service"
)

// LocationHandler handles HTTP requests for driver positions.
type LocationHandler struct {
	tracking  *service.TrackingService
	history   *service.HistoryService
	proximity *service.ProximityService
	router    service.Router
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(
	tracking *service.TrackingService,
	history *service.HistoryService,
	proximity *service.ProximityService,
	router service.Router,
) *LocationHandler {
	return &LocationHandler{
		tracking:  tracking,
		history:   history,
		proximity: proximity,
		router:    router,
	}
}

// UpdateLocationRequest is the HTTP request body for a position report.
type UpdateLocationRequest struct {
	Coordinates  []float64  `json:"coordinates"`
	Accuracy     *float64   `json:"accuracy"`
	Speed        *float64   `json:"speed"`
	Heading      *float64   `json:"heading"`
	Altitude     *float64   `json:"altitude"`
	BatteryLevel *float64   `json:"batteryLevel"`
	IsCharging   bool       `json:"isCharging"`
	Source       string     `json:"source"`
	Timestamp    *time.Time `json:"timestamp"`
}

// UpdateLocationResponse is the HTTP response for a position report.
type UpdateLocationResponse struct {
	Message    string    `json:"message"`
	Location   pointJSON `json:"location"`
	Timestamp  time.Time `json:"timestamp"`
	DeliveryID string    `json:"deliveryId,omitempty"`
	Status     string    `json:"status"`
	Applied    bool      `json:"applied"`
}

// CurrentLocationResponse is the HTTP response for a driver's position.
type CurrentLocationResponse struct {
	DriverID   string    `json:"driverId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Vehicle    string    `json:"vehicle"`
	Location   pointJSON `json:"location"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Update handles POST /v1/location/update
func (h *LocationHandler) Update(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	result, err := h.tracking.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID:     middleware.GetUserID(c),
		Coordinates:  req.Coordinates,
		Accuracy:     req.Accuracy,
		Speed:        req.Speed,
		Heading:      req.Heading,
		Altitude:     req.Altitude,
		BatteryLevel: req.BatteryLevel,
		IsCharging:   req.IsCharging,
		Source:       req.Source,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, UpdateLocationResponse{
		Message:    "location updated",
		Location:   newPointJSON(result.Sample.Location),
		Timestamp:  result.Sample.CreatedAt,
		DeliveryID: result.Sample.DeliveryID,
		Status:     string(result.Status),
		Applied:    result.Applied,
	})
}

// GetDriver handles GET /v1/location/driver/:driverId
func (h *LocationHandler) GetDriver(c *gin.Context) {
	driver, err := h.tracking.GetCurrent(c.Request.Context(), c.Param("driverId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CurrentLocationResponse{
		DriverID:   driver.ID,
		Name:       driver.Name,
		Status:     string(driver.Status),
		Vehicle:    string(driver.Vehicle),
		Location:   newPointJSON(*driver.Location),
		LastUpdate: driver.LastLocationUpdate,
	})
}

// History handles GET /v1/location/history/:driverId
func (h *LocationHandler) History(c *gin.Context) {
	start, err := queryTime(c, "startDate")
	if err != nil {
		respondBadRequest(c, "startDate must be an RFC3339 timestamp")
		return
	}
	end, err := queryTime(c, "endDate")
	if err != nil {
		respondBadRequest(c, "endDate must be an RFC3339 timestamp")
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultHistoryLimit)
	if err != nil {
		respondBadRequest(c, "limit must be an integer")
		return
	}

	samples, err := h.history.History(c.Request.Context(), service.HistoryQuery{
		DriverID: c.Param("driverId"),
		Start:    start,
		End:      end,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, historyCollection(samples))
}

// Nearby handles GET /v1/location/nearby
func (h *LocationHandler) Nearby(c *gin.Context) {
	origin, err := geo.ParseOrdinates(c.Query("longitude"), c.Query("latitude"))
	if err != nil {
		respondError(c, err)
		return
	}
	maxDistance, err := queryFloat(c, "maxDistance", service.DefaultNearbyDistanceMeters)
	if err != nil {
		respondBadRequest(c, "maxDistance must be a finite number")
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultNearbyLimit)
	if err != nil {
		respondBadRequest(c, "limit must be an integer")
		return
	}

	drivers, err := h.proximity.FindNearby(c.Request.Context(), service.NearbyQuery{
		Origin:            origin,
		MaxDistanceMeters: maxDistance,
		Limit:             limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, nearbyCollection(drivers))
}

// Route handles GET /v1/location/route
func (h *LocationHandler) Route(c *gin.Context) {
	if c.Query("origin") == "" || c.Query("destination") == "" {
		respondBadRequest(c, "origin and destination are required")
		return
	}
	origin, err := geo.ParsePair(c.Query("origin"))
	if err != nil {
		respondError(c, err)
		return
	}
	destination, err := geo.ParsePair(c.Query("destination"))
	if err != nil {
		respondError(c, err)
		return
	}

	route, err := h.router.Route(c.Request.Context(), origin, destination, service.RouteMode(c.Query("mode")))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, routeFeature(route))
}

// driverView is the JSON form of a driver profile.
type driverView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Status     string     `json:"status"`
	Vehicle    string     `json:"vehicle"`
	Plate      string     `json:"licensePlate,omitempty"`
	Location   *pointJSON `json:"location,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

func newDriverView(d *domain.Driver) driverView {
	v := driverView{
		ID:      d.ID,
		Name:    d.Name,
		Email:   d.Email,
		Phone:   d.Phone,
		Status:  string(d.Status),
		Vehicle: string(d.Vehicle),
		Plate:   d.LicensePlate,
	}
	if d.HasLocation() {
		p := newPointJSON(*d.Location)
		v.Location = &p
		at := d.LastLocationUpdate
		v.LastUpdate = &at
	}
	return v
}
