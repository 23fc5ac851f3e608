package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"courier/internal/domain"
	"courier/internal/repository"
)

const deliveryColumns = `
	id, order_id, customer_name, address, COALESCE(phone, ''), COALESCE(driver_id, ''),
	status, COALESCE(notes, ''), assigned_at, picked_at, delivered_at, created_at, updated_at`

// DeliveryRepository is a PostgreSQL implementation of repository.DeliveryRepository.
type DeliveryRepository struct {
	q Querier
}

// NewDeliveryRepository creates a new PostgreSQL delivery repository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{q: db}
}

// NewDeliveryRepositoryWithTx creates a delivery repository using a transaction.
func NewDeliveryRepositoryWithTx(tx *sql.Tx) *DeliveryRepository {
	return &DeliveryRepository{q: tx}
}

// Create persists a new delivery.
func (r *DeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	query := `
		INSERT INTO deliveries (id, order_id, customer_name, address, phone, driver_id, status, notes,
			assigned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q.ExecContext(ctx, query,
		delivery.ID,
		delivery.OrderID,
		delivery.CustomerName,
		delivery.Address,
		nullString(delivery.Phone),
		nullString(delivery.DriverID),
		delivery.Status,
		nullString(delivery.Notes),
		nullTime(delivery.AssignedAt),
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID retrieves a delivery by ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	query := `SELECT` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	delivery, err := scanDelivery(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return delivery, nil
}

// UpdateStatus moves a delivery from one status to another and stamps the
// matching timestamp. The status guard makes concurrent transitions of the
// same delivery apply at most once.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error {
	query := `
		UPDATE deliveries
		SET status = $1,
		    updated_at = $2,
		    assigned_at = CASE WHEN $1 = 'assigned' THEN $2 ELSE assigned_at END,
		    picked_at = CASE WHEN $1 = 'picked' THEN $2 ELSE picked_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $2 ELSE delivered_at END
		WHERE id = $3 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query, string(to), at, id, string(from))
	if err != nil {
		return err
	}
	return r.checkGuarded(ctx, id, result)
}

// Assign binds a pending delivery to driverID.
func (r *DeliveryRepository) Assign(ctx context.Context, id, driverID string, at time.Time) error {
	query := `
		UPDATE deliveries
		SET driver_id = $1,
		    status = $2,
		    assigned_at = $3,
		    updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		driverID,
		string(domain.DeliveryStatusAssigned),
		at,
		id,
		string(domain.DeliveryStatusPending),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return err
	}
	return r.checkGuarded(ctx, id, result)
}

// checkGuarded tells a missing delivery apart from one whose status moved
// on when a guarded update touched no row.
func (r *DeliveryRepository) checkGuarded(ctx context.Context, id string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStatusChanged
}

// FindActiveForDriver returns the driver's most recent active delivery.
// Returns nil if the driver has none.
func (r *DeliveryRepository) FindActiveForDriver(ctx context.Context, driverID string) (*domain.Delivery, error) {
	query := `SELECT` + deliveryColumns + `
		FROM deliveries
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	active := make([]string, 0, len(domain.ActiveDeliveryStatuses))
	for _, s := range domain.ActiveDeliveryStatuses {
		active = append(active, string(s))
	}

	delivery, err := scanDelivery(r.q.QueryRowContext(ctx, query, driverID, pq.Array(active)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return delivery, nil
}

func scanDelivery(row rowScanner) (*domain.Delivery, error) {
	var delivery domain.Delivery
	var assignedAt, pickedAt, deliveredAt sql.NullTime

	err := row.Scan(
		&delivery.ID,
		&delivery.OrderID,
		&delivery.CustomerName,
		&delivery.Address,
		&delivery.Phone,
		&delivery.DriverID,
		&delivery.Status,
		&delivery.Notes,
		&assignedAt,
		&pickedAt,
		&deliveredAt,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedAt.Valid {
		delivery.AssignedAt = assignedAt.Time
	}
	if pickedAt.Valid {
		delivery.PickedAt = pickedAt.Time
	}
	if deliveredAt.Valid {
		delivery.DeliveredAt = deliveredAt.Time
	}
	return &delivery, nil
}

// Ensure DeliveryRepository implements repository.DeliveryRepository.
var _ repository.DeliveryRepository = (*DeliveryRepository)(nil)
