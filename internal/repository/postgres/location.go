package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"courier/internal/domain"
	"courier/internal/repository"
)

const sampleColumns = `
	id, driver_id, COALESCE(delivery_id, ''), longitude, latitude,
	accuracy, speed, heading, altitude, battery_level, is_charging,
	source, recorded_at, created_at`

// LocationRepository is a PostgreSQL implementation of repository.LocationRepository.
type LocationRepository struct {
	q Querier
}

// NewLocationRepository creates a new PostgreSQL location history repository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{q: db}
}

// NewLocationRepositoryWithTx creates a location repository using a transaction.
func NewLocationRepositoryWithTx(tx *sql.Tx) *LocationRepository {
	return &LocationRepository{q: tx}
}

// Append persists a sample.
func (r *LocationRepository) Append(ctx context.Context, sample *domain.LocationSample) error {
	query := `
		INSERT INTO location_samples (
			id, driver_id, delivery_id, longitude, latitude,
			accuracy, speed, heading, altitude, battery_level, is_charging,
			source, recorded_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var recordedAt sql.NullTime
	if sample.RecordedAt != nil {
		recordedAt = sql.NullTime{Time: *sample.RecordedAt, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		sample.ID,
		sample.DriverID,
		nullString(sample.DeliveryID),
		sample.Location.Longitude,
		sample.Location.Latitude,
		nullFloat(sample.Accuracy),
		nullFloat(sample.Speed),
		nullFloat(sample.Heading),
		nullFloat(sample.Altitude),
		nullFloat(sample.BatteryLevel),
		sample.IsCharging,
		sample.Source,
		recordedAt,
		sample.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append location sample: %w", err)
	}
	return nil
}

// Trim keeps the newest keep samples of a driver and deletes the rest in a
// single statement. Concurrent trims for the same driver may both run; the
// second one finds nothing left to delete.
func (r *LocationRepository) Trim(ctx context.Context, driverID string, keep int) (int64, error) {
	query := `
		DELETE FROM location_samples
		WHERE id IN (
			SELECT id FROM location_samples
			WHERE driver_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		)
	`

	result, err := r.q.ExecContext(ctx, query, driverID, keep)
	if err != nil {
		return 0, fmt.Errorf("trim location samples: %w", err)
	}
	return result.RowsAffected()
}

// QueryHistory returns samples newest first.
func (r *LocationRepository) QueryHistory(ctx context.Context, filter repository.HistoryFilter) ([]*domain.LocationSample, error) {
	var where strings.Builder
	args := []any{filter.DriverID}
	where.WriteString(`driver_id = $1`)

	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		fmt.Fprintf(&where, ` AND created_at >= $%d`, len(args))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		fmt.Fprintf(&where, ` AND created_at <= $%d`, len(args))
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(`SELECT %s FROM location_samples WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		sampleColumns, where.String(), len(args))
	return r.list(ctx, query, args...)
}

// QueryPath returns all samples linked to a delivery, oldest first.
func (r *LocationRepository) QueryPath(ctx context.Context, deliveryID string) ([]*domain.LocationSample, error) {
	query := `SELECT` + sampleColumns + `
		FROM location_samples
		WHERE delivery_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, deliveryID)
}

// DriversOverCap returns the drivers holding more than limit samples.
func (r *LocationRepository) DriversOverCap(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT driver_id FROM location_samples
		GROUP BY driver_id
		HAVING COUNT(*) > $1
		ORDER BY driver_id
	`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *LocationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.LocationSample, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]*domain.LocationSample, 0)
	for rows.Next() {
		var s domain.LocationSample
		var accuracy, speed, heading, altitude, battery sql.NullFloat64
		var recordedAt sql.NullTime

		if err := rows.Scan(
			&s.ID,
			&s.DriverID,
			&s.DeliveryID,
			&s.Location.Longitude,
			&s.Location.Latitude,
			&accuracy,
			&speed,
			&heading,
			&altitude,
			&battery,
			&s.IsCharging,
			&s.Source,
			&recordedAt,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}

		s.Accuracy = floatPtr(accuracy)
		s.Speed = floatPtr(speed)
		s.Heading = floatPtr(heading)
		s.Altitude = floatPtr(altitude)
		s.BatteryLevel = floatPtr(battery)
		if recordedAt.Valid {
			t := recordedAt.Time
			s.RecordedAt = &t
		}
		samples = append(samples, &s)
	}
	return samples, rows.Err()
}

// Ensure LocationRepository implements repository.LocationRepository.
var _ repository.LocationRepository = (*LocationRepository)(nil)
