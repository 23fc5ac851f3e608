package domain

import "time"

// DeliveryStatus represents the status of a delivery order.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusPicked    DeliveryStatus = "picked"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// ActiveDeliveryStatuses are the non-terminal statuses during which a
// driver's location samples are linked to the delivery.
var ActiveDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusAssigned,
	DeliveryStatusPicked,
	DeliveryStatusInTransit,
}

// IsActive reports whether the delivery is assigned and not yet finished.
func (s DeliveryStatus) IsActive() bool {
	for _, active := range ActiveDeliveryStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// Valid reports whether s is a known status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusAssigned, DeliveryStatusPicked,
		DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	}
	return false
}

// Delivery represents a delivery order.
type Delivery struct {
	ID           string
	OrderID      string
	CustomerName string
	Address      string
	Phone        string
	DriverID     string
	Status       DeliveryStatus
	Notes        string
	AssignedAt   time.Time
	PickedAt     time.Time
	DeliveredAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
