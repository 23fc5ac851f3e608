package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// HistoryFilter selects a driver's samples. Zero Start/End leave that side open.
type HistoryFilter struct {
	DriverID string
	Start    time.Time
	End      time.Time
	Limit    int
}

// LocationRepository is the append-only store of location samples.
type LocationRepository interface {
	// Append persists a sample. ID and CreatedAt must already be set.
	Append(ctx context.Context, sample *domain.LocationSample) error

	// Trim keeps the newest keep samples of a driver and deletes the rest.
	// Returns the number of deleted samples.
	Trim(ctx context.Context, driverID string, keep int) (int64, error)

	// QueryHistory returns samples newest first.
	QueryHistory(ctx context.Context, filter HistoryFilter) ([]*domain.LocationSample, error)

	// QueryPath returns all samples linked to a delivery, oldest first.
	QueryPath(ctx context.Context, deliveryID string) ([]*domain.LocationSample, error)

	// DriversOverCap returns the drivers holding more than limit samples.
	DriversOverCap(ctx context.Context, limit int) ([]string, error)
}
