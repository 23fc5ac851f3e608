package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/redis"
	"courier/internal/repository"
)

const (
	// DefaultNearbyDistanceMeters is the search radius when none is given.
	DefaultNearbyDistanceMeters = 5000.0
	// DefaultNearbyLimit is the result count when none is given.
	DefaultNearbyLimit = 20
	// MaxNearbyLimit bounds the result count of one query.
	MaxNearbyLimit = 100

	// Candidates from the index are over-fetched because some of them may
	// have changed status since they were indexed.
	nearbyOverFetch = 2
)

// ProximityService answers "which available drivers are near this point".
type ProximityService struct {
	index      redis.PositionIndex
	cache      redis.DriverCache
	driverRepo repository.DriverRepository
	logger     logrus.FieldLogger
}

// NewProximityService creates a new ProximityService. cache may be nil.
func NewProximityService(
	index redis.PositionIndex,
	cache redis.DriverCache,
	driverRepo repository.DriverRepository,
) *ProximityService {
	return &ProximityService{
		index:      index,
		cache:      cache,
		driverRepo: driverRepo,
		logger:     logrus.StandardLogger(),
	}
}

// NearbyQuery contains the parameters of a proximity search.
type NearbyQuery struct {
	Origin            domain.GeoPoint
	MaxDistanceMeters float64
	Limit             int
}

// NearbyDriver is an available driver and its distance from the origin,
// rounded to centimetres.
type NearbyDriver struct {
	Driver         *domain.Driver
	DistanceMeters float64
}

// FindNearby returns available drivers with a known position within
// MaxDistanceMeters of Origin, nearest first, at most Limit of them.
func (s *ProximityService) FindNearby(ctx context.Context, q NearbyQuery) ([]NearbyDriver, error) {
	origin, err := geo.NewPoint(q.Origin.Longitude, q.Origin.Latitude)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(q.MaxDistanceMeters) || math.IsInf(q.MaxDistanceMeters, 0) || q.MaxDistanceMeters <= 0 {
		return nil, ErrInvalidDistance
	}
	if q.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	limit := q.Limit
	if limit > MaxNearbyLimit {
		limit = MaxNearbyLimit
	}

	candidates, err := s.index.Nearby(ctx, origin, q.MaxDistanceMeters, limit*nearbyOverFetch)
	if err != nil {
		return nil, fmt.Errorf("spatial index search: %w", err)
	}
	if len(candidates) == 0 {
		return []NearbyDriver{}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DriverID
	}
	drivers, err := s.loadDrivers(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]NearbyDriver, 0, len(drivers))
	for _, d := range drivers {
		if d.Status != domain.DriverStatusAvailable || !d.HasLocation() {
			continue
		}
		distance := geo.RoundDistance(geo.HaversineMeters(origin, *d.Location))
		if distance > q.MaxDistanceMeters {
			continue
		}
		result = append(result, NearbyDriver{Driver: d, DistanceMeters: distance})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceMeters == result[j].DistanceMeters {
			return result[i].Driver.ID < result[j].Driver.ID
		}
		return result[i].DistanceMeters < result[j].DistanceMeters
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// loadDrivers fetches profiles from cache first and the database for misses.
func (s *ProximityService) loadDrivers(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	found := make(map[string]*domain.Driver, len(ids))
	missing := ids

	if s.cache != nil {
		cached, miss, err := s.cache.GetDriversBatch(ctx, ids)
		if err != nil {
			s.logger.WithError(err).Debug("driver cache batch read")
		} else {
			found, missing = cached, miss
		}
	}

	if len(missing) > 0 {
		fromDB, err := s.driverRepo.GetByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load drivers: %w", err)
		}
		for _, d := range fromDB {
			found[d.ID] = d
		}
		if s.cache != nil && len(fromDB) > 0 {
			_ = s.cache.SetDriversBatch(ctx, fromDB)
		}
	}

	drivers := make([]*domain.Driver, 0, len(found))
	for _, id := range ids {
		if d, ok := found[id]; ok {
			drivers = append(drivers, d)
		}
	}
	return drivers, nil
}

// Reindex rebuilds the spatial index from the authoritative driver rows.
func (s *ProximityService) Reindex(ctx context.Context) (int, error) {
	drivers, err := s.driverRepo.ListAvailableWithLocation(ctx)
	if err != nil {
		return 0, fmt.Errorf("list available drivers: %w", err)
	}

	positions := make(map[string]domain.GeoPoint, len(drivers))
	for _, d := range drivers {
		if d.HasLocation() {
			positions[d.ID] = *d.Location
		}
	}
	if err := s.index.Reset(ctx, positions); err != nil {
		return 0, fmt.Errorf("reset spatial index: %w", err)
	}
	return len(positions), nil
}
