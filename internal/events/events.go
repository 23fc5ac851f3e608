// Package events publishes driver location changes to downstream consumers.
package events

import (
	"context"
	"time"
)

// LocationUpdated is emitted after every accepted location update.
type LocationUpdated struct {
	DriverID   string    `json:"driverId"`
	DeliveryID string    `json:"deliveryId,omitempty"`
	Longitude  float64   `json:"longitude"`
	Latitude   float64   `json:"latitude"`
	Status     string    `json:"status"`
	Applied    bool      `json:"applied"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Publisher delivers location events.
type Publisher interface {
	PublishLocation(ctx context.Context, event LocationUpdated) error
	Close() error
}
