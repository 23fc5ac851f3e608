package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"courier/internal/domain"
	"courier/internal/repository"
)

const driverColumns = `
	d.id, u.name, u.email, COALESCE(u.phone, ''), d.status,
	COALESCE(d.vehicle, ''), COALESCE(d.license_plate, ''),
	d.location_lon, d.location_lat, d.last_location_update`

const driverFrom = ` FROM drivers d JOIN users u ON u.id = d.id`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
// A driver's current position lives on its drivers row; it is the
// authoritative copy that the spatial index mirrors.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// Create adds the tracking profile of a registered user.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `INSERT INTO drivers (id, status, vehicle, license_plate) VALUES ($1, $2, $3, $4)`
	_, err := r.q.ExecContext(ctx, query,
		driver.ID,
		driver.Status,
		nullString(string(driver.Vehicle)),
		nullString(driver.LicensePlate),
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT` + driverColumns + driverFrom + ` WHERE d.id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

// GetByIDs retrieves the drivers that exist among ids.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT` + driverColumns + driverFrom + ` WHERE d.id = ANY($1)`
	return r.list(ctx, query, pq.Array(ids))
}

// ListAvailableWithLocation returns every available driver with a known position.
func (r *DriverRepository) ListAvailableWithLocation(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT` + driverColumns + driverFrom + `
		WHERE d.status = $1 AND d.location_lon IS NOT NULL AND d.location_lat IS NOT NULL
		ORDER BY d.id`
	return r.list(ctx, query, domain.DriverStatusAvailable)
}

// UpdateStatus updates the availability of a driver.
func (r *DriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	query := `UPDATE drivers SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetCurrentLocation overwrites the driver's current position in one statement.
func (r *DriverRepository) SetCurrentLocation(ctx context.Context, id string, point domain.GeoPoint, at time.Time, rejectStale bool) (repository.LocationWrite, error) {
	query := `
		UPDATE drivers
		SET location_lon = $2,
		    location_lat = $3,
		    last_location_update = $4,
		    status = CASE WHEN status = $6 THEN $7 ELSE status END
		WHERE id = $1
		  AND (NOT $5 OR last_location_update IS NULL OR last_location_update <= $4)
		RETURNING status
	`

	var status domain.DriverStatus
	err := r.q.QueryRowContext(ctx, query,
		id,
		point.Longitude,
		point.Latitude,
		at,
		rejectStale,
		domain.DriverStatusOffline,
		domain.DriverStatusAvailable,
	).Scan(&status)
	if err == nil {
		return repository.LocationWrite{Status: status, Applied: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return repository.LocationWrite{}, fmt.Errorf("set current location: %w", err)
	}

	// No row updated: either the driver is unknown or the write was stale.
	err = r.q.QueryRowContext(ctx, `SELECT status FROM drivers WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.LocationWrite{}, repository.ErrNotFound
		}
		return repository.LocationWrite{}, err
	}
	return repository.LocationWrite{Status: status, Applied: false}, nil
}

func (r *DriverRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Driver, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var driver domain.Driver
	var lon, lat sql.NullFloat64
	var lastUpdate sql.NullTime

	err := row.Scan(
		&driver.ID,
		&driver.Name,
		&driver.Email,
		&driver.Phone,
		&driver.Status,
		&driver.Vehicle,
		&driver.LicensePlate,
		&lon,
		&lat,
		&lastUpdate,
	)
	if err != nil {
		return nil, err
	}

	if lon.Valid && lat.Valid {
		driver.Location = &domain.GeoPoint{Longitude: lon.Float64, Latitude: lat.Float64}
	}
	if lastUpdate.Valid {
		driver.LastLocationUpdate = lastUpdate.Time
	}
	return &driver, nil
}

// Ensure DriverRepository implements repository.DriverRepository.
var _ repository.DriverRepository = (*DriverRepository)(nil)
