package domain

import "time"

// DriverStatus represents the availability of a driver.
type DriverStatus string

const (
	DriverStatusOffline    DriverStatus = "offline"
	DriverStatusAvailable  DriverStatus = "available"
	DriverStatusOnDelivery DriverStatus = "on_delivery"
)

// Valid reports whether s is a known status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusOffline, DriverStatusAvailable, DriverStatusOnDelivery:
		return true
	}
	return false
}

// VehicleKind represents the vehicle a driver uses.
type VehicleKind string

const (
	VehicleCar       VehicleKind = "car"
	VehicleMotorbike VehicleKind = "motorbike"
)

// Valid reports whether v is a known vehicle.
func (v VehicleKind) Valid() bool {
	return v == VehicleCar || v == VehicleMotorbike
}

// Driver is the tracking profile of a driver.
type Driver struct {
	ID                 string
	Name               string
	Email              string
	Phone              string
	Status             DriverStatus
	Vehicle            VehicleKind
	LicensePlate       string
	Location           *GeoPoint
	LastLocationUpdate time.Time
}

// HasLocation reports whether a position was ever recorded for the driver.
func (d *Driver) HasLocation() bool {
	return d.Location != nil
}
