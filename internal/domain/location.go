package domain

import "time"

// LocationSource identifies how a position was obtained.
type LocationSource string

const (
	LocationSourceGPS     LocationSource = "gps"
	LocationSourceNetwork LocationSource = "network"
	LocationSourceManual  LocationSource = "manual"
	LocationSourceOther   LocationSource = "other"
)

// Valid reports whether s is a known source.
func (s LocationSource) Valid() bool {
	switch s {
	case LocationSourceGPS, LocationSourceNetwork, LocationSourceManual, LocationSourceOther:
		return true
	}
	return false
}

// LocationSample is one immutable entry of a driver's position history.
// Optional telemetry is nil when the client did not report it.
type LocationSample struct {
	ID           string
	DriverID     string
	DeliveryID   string // empty when no delivery was active
	Location     GeoPoint
	Accuracy     *float64
	Speed        *float64
	Heading      *float64
	Altitude     *float64
	BatteryLevel *float64
	IsCharging   bool
	Source       LocationSource
	RecordedAt   *time.Time // client clock
	CreatedAt    time.Time  // server clock
}
