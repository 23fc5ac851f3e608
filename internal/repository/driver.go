package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// LocationWrite is the outcome of overwriting a driver's current position.
type LocationWrite struct {
	// Status is the driver's availability after the write.
	Status domain.DriverStatus
	// Applied is false when a stale update was ignored.
	Applied bool
}

// DriverRepository defines the persistence operations for driver profiles.
type DriverRepository interface {
	// Create adds the tracking profile of a registered user.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDs retrieves the drivers that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error)

	// UpdateStatus updates the availability of a driver.
	UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error

	// SetCurrentLocation overwrites the driver's position and update time and
	// flips an offline driver to available. With rejectStale set, a write whose
	// timestamp is older than the stored one is ignored.
	SetCurrentLocation(ctx context.Context, id string, point domain.GeoPoint, at time.Time, rejectStale bool) (LocationWrite, error)

	// ListAvailableWithLocation returns every available driver with a known position.
	ListAvailableWithLocation(ctx context.Context) ([]*domain.Driver, error)
}
