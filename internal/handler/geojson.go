package handler

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"courier/internal/domain"
	"courier/internal/service"
)

func pointGeometry(p domain.GeoPoint) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Longitude, p.Latitude})
}

func lineGeometry(points []domain.GeoPoint) *geom.LineString {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Longitude, p.Latitude)
	}
	return geom.NewLineStringFlat(geom.XY, flat)
}

func newCollection(n int) *geojson.FeatureCollection {
	return &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, n)}
}

// historyCollection renders samples as Point features stamped with their
// server receive time.
func historyCollection(samples []*domain.LocationSample) *geojson.FeatureCollection {
	fc := newCollection(len(samples))
	for _, s := range samples {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.ID,
			Geometry: pointGeometry(s.Location),
			Properties: map[string]any{
				"timestamp": s.CreatedAt,
			},
		})
	}
	return fc
}

// pathCollection renders a delivery trace: one Point per sample, oldest
// first, followed by a LineString of the whole trace when it has at least
// two samples.
func pathCollection(path *service.DeliveryPath) *geojson.FeatureCollection {
	fc := newCollection(len(path.Samples) + 1)
	points := make([]domain.GeoPoint, 0, len(path.Samples))
	for _, s := range path.Samples {
		props := map[string]any{
			"timestamp": s.CreatedAt,
			"driverId":  s.DriverID,
		}
		if s.Speed != nil {
			props["speed"] = *s.Speed
		}
		if s.Heading != nil {
			props["heading"] = *s.Heading
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         s.ID,
			Geometry:   pointGeometry(s.Location),
			Properties: props,
		})
		points = append(points, s.Location)
	}

	if len(points) >= 2 {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: lineGeometry(points),
			Properties: map[string]any{
				"deliveryId":   path.DeliveryID,
				"lengthMeters": path.LengthMeters,
			},
		})
	}
	return fc
}

// nearbyCollection renders proximity results nearest first.
func nearbyCollection(drivers []service.NearbyDriver) *geojson.FeatureCollection {
	fc := newCollection(len(drivers))
	for _, n := range drivers {
		d := n.Driver
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       d.ID,
			Geometry: pointGeometry(*d.Location),
			Properties: map[string]any{
				"id":         d.ID,
				"name":       d.Name,
				"email":      d.Email,
				"phone":      d.Phone,
				"vehicle":    d.Vehicle,
				"distance":   n.DistanceMeters,
				"lastUpdate": d.LastLocationUpdate,
			},
		})
	}
	return fc
}

func routeFeature(r *service.Route) *geojson.Feature {
	return &geojson.Feature{
		Geometry: lineGeometry(r.Points),
		Properties: map[string]any{
			"distance": r.DistanceMeters,
			"bearing":  r.BearingDegrees,
			"mode":     r.Mode,
		},
	}
}

// pointJSON is the {"type":"Point","coordinates":[lon,lat]} form used in
// plain JSON responses.
type pointJSON struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func newPointJSON(p domain.GeoPoint) pointJSON {
	return pointJSON{Type: "Point", Coordinates: p.Coordinates()}
}
