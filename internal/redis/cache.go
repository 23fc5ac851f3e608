package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/domain"
)

// DriverCacheTTL bounds how long a cached profile may lag behind Postgres.
const DriverCacheTTL = 30 * time.Second

const driverCachePrefix = "cache:driver:"

// CacheStore caches driver profiles read by position and proximity queries.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedDriver is the JSON form of a driver profile.
type CachedDriver struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Status       string     `json:"status"`
	Vehicle      string     `json:"vehicle"`
	LicensePlate string     `json:"license_plate"`
	Longitude    *float64   `json:"lon,omitempty"`
	Latitude     *float64   `json:"lat,omitempty"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
}

// NewCachedDriver converts a profile for caching.
func NewCachedDriver(d *domain.Driver) *CachedDriver {
	c := &CachedDriver{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		Status:       string(d.Status),
		Vehicle:      string(d.Vehicle),
		LicensePlate: d.LicensePlate,
	}
	if d.Location != nil {
		lon, lat := d.Location.Longitude, d.Location.Latitude
		c.Longitude, c.Latitude = &lon, &lat
	}
	if !d.LastLocationUpdate.IsZero() {
		t := d.LastLocationUpdate
		c.LastUpdate = &t
	}
	return c
}

// Driver converts the cached form back to a profile.
func (c *CachedDriver) Driver() *domain.Driver {
	d := &domain.Driver{
		ID:           c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Status:       domain.DriverStatus(c.Status),
		Vehicle:      domain.VehicleKind(c.Vehicle),
		LicensePlate: c.LicensePlate,
	}
	if c.Longitude != nil && c.Latitude != nil {
		d.Location = &domain.GeoPoint{Longitude: *c.Longitude, Latitude: *c.Latitude}
	}
	if c.LastUpdate != nil {
		d.LastLocationUpdate = *c.LastUpdate
	}
	return d
}

// GetDriver retrieves a driver from cache. Returns nil on a miss.
func (s *CacheStore) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	data, err := s.client.Get(ctx, driverCachePrefix+driverID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedDriver
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached.Driver(), nil
}

// SetDriver stores a driver in cache.
func (s *CacheStore) SetDriver(ctx context.Context, driver *domain.Driver) error {
	data, err := json.Marshal(NewCachedDriver(driver))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL).Err()
}

// InvalidateDriver removes a driver from cache.
func (s *CacheStore) InvalidateDriver(ctx context.Context, driverID string) error {
	return s.client.Del(ctx, driverCachePrefix+driverID).Err()
}

// GetDriversBatch retrieves multiple drivers from cache using a pipeline.
// Returns the hits by ID and the IDs that must be loaded from the database.
func (s *CacheStore) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error) {
	result := make(map[string]*domain.Driver, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(driverIDs))
	for _, id := range driverIDs {
		cmds[id] = pipe.Get(ctx, driverCachePrefix+id)
	}

	// Exec reports redis.Nil when any key is missing; per-command errors are
	// inspected below.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, nil, err
	}

	var missing []string
	for _, id := range driverIDs {
		data, err := cmds[id].Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}

		var cached CachedDriver
		if err := json.Unmarshal(data, &cached); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = cached.Driver()
	}

	return result, missing, nil
}

// SetDriversBatch stores multiple drivers in cache using a pipeline.
func (s *CacheStore) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	if len(drivers) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, driver := range drivers {
		data, err := json.Marshal(NewCachedDriver(driver))
		if err != nil {
			continue
		}
		pipe.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}
