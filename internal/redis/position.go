package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"courier/internal/domain"
	"courier/internal/geo"
)

// availablePositionsKey is a GEO set holding only drivers whose status is available.
const availablePositionsKey = "drivers:available:positions"

// GEOSEARCH measures on a 6372797.560856 m sphere and stores 52-bit geohashes,
// so its distances run about 0.03% longer than geo.HaversineMeters and may be
// off by up to half a metre. The search is widened to cover both; callers
// re-filter on their own distance.
const (
	searchRadiusFactor = 1.0005
	searchRadiusSlack  = 1.0
)

func searchRadius(radiusMeters float64) float64 {
	return radiusMeters*searchRadiusFactor + searchRadiusSlack
}

// PositionStore is the Redis GEO spatial index over available drivers.
type PositionStore struct {
	client *redis.Client
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(client *redis.Client) *PositionStore {
	return &PositionStore{client: client}
}

// Upsert stores a driver's position using GEOADD.
func (s *PositionStore) Upsert(ctx context.Context, driverID string, p domain.GeoPoint) error {
	return s.client.GeoAdd(ctx, availablePositionsKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
	}).Err()
}

// Remove drops a driver from the index.
func (s *PositionStore) Remove(ctx context.Context, driverID string) error {
	return s.client.ZRem(ctx, availablePositionsKey, driverID).Err()
}

// Nearby returns drivers within radiusMeters of origin, nearest first.
// count <= 0 means no limit.
func (s *PositionStore) Nearby(ctx context.Context, origin domain.GeoPoint, radiusMeters float64, count int) ([]geo.Neighbor, error) {
	query := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Longitude,
			Latitude:   origin.Latitude,
			Radius:     searchRadius(radiusMeters),
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}
	if count > 0 {
		query.Count = count
	}

	results, err := s.client.GeoSearchLocation(ctx, availablePositionsKey, query).Result()
	if err != nil {
		return nil, err
	}

	neighbors := make([]geo.Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, geo.Neighbor{
			DriverID:       r.Name,
			Location:       domain.GeoPoint{Longitude: r.Longitude, Latitude: r.Latitude},
			DistanceMeters: r.Dist,
		})
	}
	return neighbors, nil
}

// Reset replaces the whole index with the given positions in one transaction.
func (s *PositionStore) Reset(ctx context.Context, positions map[string]domain.GeoPoint) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, availablePositionsKey)
		if len(positions) == 0 {
			return nil
		}
		locations := make([]*redis.GeoLocation, 0, len(positions))
		for id, p := range positions {
			locations = append(locations, &redis.GeoLocation{Name: id, Longitude: p.Longitude, Latitude: p.Latitude})
		}
		pipe.GeoAdd(ctx, availablePositionsKey, locations...)
		return nil
	})
	return err
}
