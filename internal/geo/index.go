package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"courier/internal/domain"
)

// DefaultCellDegrees is the grid cell edge used by NewGridIndex (~5.5 km of latitude).
const DefaultCellDegrees = 0.05

// Neighbor is a driver found by a proximity search.
type Neighbor struct {
	DriverID       string
	Location       domain.GeoPoint
	DistanceMeters float64
}

type cellKey struct {
	row, col int
}

// GridIndex is an in-process spatial index over driver positions. Drivers are
// bucketed into fixed-size lat/lon cells; a search scans only the cells that
// intersect the bounding box of the radius and filters by haversine distance.
type GridIndex struct {
	mu       sync.RWMutex
	cellDeg  float64
	rows     int
	cols     int
	cells    map[cellKey]map[string]domain.GeoPoint
	byDriver map[string]cellKey
}

// NewGridIndex creates an empty index. cellDegrees <= 0 selects DefaultCellDegrees.
func NewGridIndex(cellDegrees float64) *GridIndex {
	if cellDegrees <= 0 {
		cellDegrees = DefaultCellDegrees
	}
	return &GridIndex{
		cellDeg:  cellDegrees,
		rows:     int(math.Ceil(180 / cellDegrees)),
		cols:     int(math.Ceil(360 / cellDegrees)),
		cells:    make(map[cellKey]map[string]domain.GeoPoint),
		byDriver: make(map[string]cellKey),
	}
}

// Upsert places or moves a driver in the index.
func (g *GridIndex) Upsert(_ context.Context, driverID string, p domain.GeoPoint) error {
	key := g.keyFor(p)

	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.byDriver[driverID]; ok && old != key {
		g.removeFromCell(old, driverID)
	}
	cell, ok := g.cells[key]
	if !ok {
		cell = make(map[string]domain.GeoPoint)
		g.cells[key] = cell
	}
	cell[driverID] = p
	g.byDriver[driverID] = key
	return nil
}

// Remove drops a driver from the index. Unknown drivers are ignored.
func (g *GridIndex) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if key, ok := g.byDriver[driverID]; ok {
		g.removeFromCell(key, driverID)
		delete(g.byDriver, driverID)
	}
	return nil
}

// Reset replaces the contents of the index.
func (g *GridIndex) Reset(_ context.Context, positions map[string]domain.GeoPoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cells = make(map[cellKey]map[string]domain.GeoPoint)
	g.byDriver = make(map[string]cellKey, len(positions))
	for id, p := range positions {
		key := g.keyFor(p)
		cell, ok := g.cells[key]
		if !ok {
			cell = make(map[string]domain.GeoPoint)
			g.cells[key] = cell
		}
		cell[id] = p
		g.byDriver[id] = key
	}
	return nil
}

// Nearby returns drivers within radiusMeters of origin, nearest first.
// count <= 0 means no limit.
func (g *GridIndex) Nearby(_ context.Context, origin domain.GeoPoint, radiusMeters float64, count int) ([]Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var found []Neighbor
	collect := func(cell map[string]domain.GeoPoint) {
		for id, p := range cell {
			d := HaversineMeters(origin, p)
			if d <= radiusMeters {
				found = append(found, Neighbor{DriverID: id, Location: p, DistanceMeters: d})
			}
		}
	}

	minRow, maxRow, firstCol, numCols := g.cellRange(origin, radiusMeters)
	if (maxRow-minRow+1)*numCols > len(g.cells) {
		// Sparse index: visiting occupied cells is cheaper than the box.
		for _, cell := range g.cells {
			collect(cell)
		}
	} else {
		for row := minRow; row <= maxRow; row++ {
			for i := 0; i < numCols; i++ {
				collect(g.cells[cellKey{row: row, col: g.wrapCol(firstCol + i)}])
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].DistanceMeters == found[j].DistanceMeters {
			return found[i].DriverID < found[j].DriverID
		}
		return found[i].DistanceMeters < found[j].DistanceMeters
	})
	if count > 0 && len(found) > count {
		found = found[:count]
	}
	return found, nil
}

// Position returns the indexed position of a driver.
func (g *GridIndex) Position(driverID string) (domain.GeoPoint, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	key, ok := g.byDriver[driverID]
	if !ok {
		return domain.GeoPoint{}, false
	}
	p, ok := g.cells[key][driverID]
	return p, ok
}

// Len returns the number of indexed drivers.
func (g *GridIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byDriver)
}

func (g *GridIndex) keyFor(p domain.GeoPoint) cellKey {
	row := int(math.Floor((p.Latitude + 90) / g.cellDeg))
	if row >= g.rows {
		row = g.rows - 1
	}
	col := int(math.Floor((p.Longitude + 180) / g.cellDeg))
	return cellKey{row: row, col: g.wrapCol(col)}
}

func (g *GridIndex) wrapCol(col int) int {
	col %= g.cols
	if col < 0 {
		col += g.cols
	}
	return col
}

// cellRange returns the rows and the wrapped column span covering the
// bounding box of a circle, padded by one cell on every side.
func (g *GridIndex) cellRange(origin domain.GeoPoint, radiusMeters float64) (minRow, maxRow, firstCol, numCols int) {
	angular := radiusMeters / EarthRadiusMeters
	dLat := toDegrees(angular)

	minRow = g.keyFor(domain.GeoPoint{Latitude: math.Max(origin.Latitude-dLat, MinLatitude)}).row - 1
	maxRow = g.keyFor(domain.GeoPoint{Latitude: math.Min(origin.Latitude+dLat, MaxLatitude)}).row + 1
	if minRow < 0 {
		minRow = 0
	}
	if maxRow >= g.rows {
		maxRow = g.rows - 1
	}

	// Widest longitude offset of a spherical cap centred at origin. When the
	// cap contains a pole every column is scanned.
	firstCol, numCols = 0, g.cols
	sinRatio := math.Sin(angular) / math.Cos(toRadians(origin.Latitude))
	if angular < math.Pi/2 && origin.Latitude+dLat < MaxLatitude && origin.Latitude-dLat > MinLatitude && sinRatio < 1 {
		dLon := toDegrees(math.Asin(sinRatio))
		first := int(math.Floor((origin.Longitude-dLon+180)/g.cellDeg)) - 1
		last := int(math.Floor((origin.Longitude+dLon+180)/g.cellDeg)) + 1
		if n := last - first + 1; n < g.cols {
			firstCol, numCols = first, n
		}
	}
	return minRow, maxRow, firstCol, numCols
}

func (g *GridIndex) removeFromCell(key cellKey, driverID string) {
	cell, ok := g.cells[key]
	if !ok {
		return
	}
	delete(cell, driverID)
	if len(cell) == 0 {
		delete(g.cells, key)
	}
}
