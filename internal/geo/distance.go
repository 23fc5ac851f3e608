package geo

import (
	"math"

	"courier/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RoundDistance rounds a distance in meters to two decimals.
func RoundDistance(meters float64) float64 {
	return math.Round(meters*100) / 100
}

// Bearing returns the initial bearing from a to b in degrees within [0, 360).
func Bearing(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := toDegrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// PathLength sums the great-circle distance between consecutive points.
func PathLength(points []domain.GeoPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineMeters(points[i-1], points[i])
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
