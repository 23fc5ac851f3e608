package service

import (
	"context"

	"courier/internal/domain"
	"courier/internal/geo"
)

// RouteMode is the travel mode requested for a route.
type RouteMode string

const (
	RouteModeDriving RouteMode = "driving"
	RouteModeWalking RouteMode = "walking"
	RouteModeCycling RouteMode = "cycling"
)

// Route is a path between two points.
type Route struct {
	Points         []domain.GeoPoint
	DistanceMeters float64
	BearingDegrees float64
	Mode           RouteMode
}

// Router computes routes between two points.
type Router interface {
	Route(ctx context.Context, origin, destination domain.GeoPoint, mode RouteMode) (*Route, error)
}

// RouteService returns the straight segment between origin and destination.
// It stands in until a road-network router is plugged in behind Router.
type RouteService struct{}

// NewRouteService creates a new RouteService.
func NewRouteService() *RouteService {
	return &RouteService{}
}

// Route returns a two-point route. An empty mode means driving.
func (s *RouteService) Route(_ context.Context, origin, destination domain.GeoPoint, mode RouteMode) (*Route, error) {
	if mode == "" {
		mode = RouteModeDriving
	}
	switch mode {
	case RouteModeDriving, RouteModeWalking, RouteModeCycling:
	default:
		return nil, ErrInvalidRouteMode
	}

	origin, err := geo.NewPoint(origin.Longitude, origin.Latitude)
	if err != nil {
		return nil, err
	}
	destination, err = geo.NewPoint(destination.Longitude, destination.Latitude)
	if err != nil {
		return nil, err
	}

	return &Route{
		Points:         []domain.GeoPoint{origin, destination},
		DistanceMeters: geo.RoundDistance(geo.HaversineMeters(origin, destination)),
		BearingDegrees: geo.RoundDistance(geo.Bearing(origin, destination)),
		Mode:           mode,
	}, nil
}

var _ Router = (*RouteService)(nil)
