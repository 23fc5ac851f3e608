package domain

// GeoPoint is a WGS84 position in degrees.
type GeoPoint struct {
	Longitude float64
	Latitude  float64
}

// Coordinates returns the point as a [longitude, latitude] pair.
func (p GeoPoint) Coordinates() []float64 {
	return []float64{p.Longitude, p.Latitude}
}
