package redis

import (
	"context"
	"time"

	"courier/internal/domain"
	"courier/internal/geo"
)

// PositionIndex is a spatial index over the current positions of available drivers.
type PositionIndex interface {
	Upsert(ctx context.Context, driverID string, p domain.GeoPoint) error
	Remove(ctx context.Context, driverID string) error
	Nearby(ctx context.Context, origin domain.GeoPoint, radiusMeters float64, count int) ([]geo.Neighbor, error)
	// Reset replaces the whole index.
	Reset(ctx context.Context, positions map[string]domain.GeoPoint) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// DriverCache caches driver profiles in front of Postgres. GetDriver returns
// nil on a miss.
type DriverCache interface {
	GetDriver(ctx context.Context, driverID string) (*domain.Driver, error)
	SetDriver(ctx context.Context, driver *domain.Driver) error
	InvalidateDriver(ctx context.Context, driverID string) error
	GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error)
	SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error
}

// Ensure concrete types implement interfaces.
var (
	_ PositionIndex      = (*PositionStore)(nil)
	_ PositionIndex      = (*geo.GridIndex)(nil)
	_ LockStoreInterface = (*LockStore)(nil)
	_ DriverCache        = (*CacheStore)(nil)
)
