package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// DeliveryRepository defines the persistence operations for delivery orders.
type DeliveryRepository interface {
	// Create persists a new delivery. Returns ErrConflict on a duplicate order ID.
	Create(ctx context.Context, delivery *domain.Delivery) error

	// GetByID retrieves a delivery by ID.
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)

	// UpdateStatus moves a delivery from one status to another and stamps the
	// matching assigned/picked/delivered time with at. Returns ErrStatusChanged
	// if the delivery is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error

	// Assign binds a pending delivery to a driver and marks it assigned.
	// Returns ErrStatusChanged if the delivery is no longer pending.
	Assign(ctx context.Context, id, driverID string, at time.Time) error

	// FindActiveForDriver returns the driver's most recently created delivery
	// in an active status. Returns nil if the driver has none.
	FindActiveForDriver(ctx context.Context, driverID string) (*domain.Delivery, error)
}
