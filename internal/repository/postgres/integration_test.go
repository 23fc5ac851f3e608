package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"courier/internal/domain"
	"courier/internal/repository"
)

// openTestDB connects to DATABASE_URL and applies migrations. Tests using it
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping database: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// createTestDriver inserts a fresh account and driver row and removes
// everything hanging off them when the test ends.
func createTestDriver(t *testing.T, db *sql.DB) string {
	t.Helper()
	ctx := context.Background()

	id := uuid.New().String()
	user := &domain.User{
		ID:           id,
		Name:         "Driver " + id[:8],
		Email:        id + "@example.test",
		PasswordHash: "x",
		Role:         domain.RoleDriver,
		CreatedAt:    time.Now().UTC(),
	}
	if err := NewUserRepository(db).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := NewDriverRepository(db).Create(ctx, &domain.Driver{ID: id, Status: domain.DriverStatusOffline, Vehicle: domain.VehicleMotorbike}); err != nil {
		t.Fatalf("create driver: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.ExecContext(ctx, `DELETE FROM location_samples WHERE driver_id = $1`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM deliveries WHERE driver_id = $1`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM drivers WHERE id = $1`, id)
		_, _ = db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func appendSamples(t *testing.T, repo *LocationRepository, driverID string, base time.Time, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		sample := &domain.LocationSample{
			ID:        uuid.New().String(),
			DriverID:  driverID,
			Location:  domain.GeoPoint{Longitude: 2.3522, Latitude: 48.8566 + float64(i)*1e-5},
			Source:    domain.LocationSourceGPS,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Append(ctx, sample); err != nil {
			t.Fatalf("append sample %d: %v", i, err)
		}
	}
}

func TestLocationRepository_TrimKeepsNewest(t *testing.T) {
	db := openTestDB(t)
	driverID := createTestDriver(t, db)
	repo := NewLocationRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	appendSamples(t, repo, driverID, base, 1001)

	over, err := repo.DriversOverCap(ctx, 1000)
	if err != nil {
		t.Fatalf("drivers over cap: %v", err)
	}
	if !containsID(over, driverID) {
		t.Errorf("expected %s over the cap, got %v", driverID, over)
	}

	deleted, err := repo.Trim(ctx, driverID, 1000)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted sample, got %d", deleted)
	}

	samples, err := repo.QueryHistory(ctx, repository.HistoryFilter{DriverID: driverID, Limit: 2000})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(samples) != 1000 {
		t.Fatalf("expected 1000 samples, got %d", len(samples))
	}
	if oldest := samples[len(samples)-1].CreatedAt; !oldest.Equal(base.Add(time.Second)) {
		t.Errorf("expected the oldest sample to be dropped, oldest kept is %v", oldest)
	}

	deleted, err = repo.Trim(ctx, driverID, 1000)
	if err != nil {
		t.Fatalf("second trim: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing left to trim, got %d", deleted)
	}
}

func TestLocationRepository_QueryHistoryRange(t *testing.T) {
	db := openTestDB(t)
	driverID := createTestDriver(t, db)
	repo := NewLocationRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	appendSamples(t, repo, driverID, base, 30)

	samples, err := repo.QueryHistory(ctx, repository.HistoryFilter{
		DriverID: driverID,
		Start:    base.Add(10 * time.Second),
		End:      base.Add(20 * time.Second),
		Limit:    100,
	})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(samples) != 11 {
		t.Fatalf("expected 11 samples in the closed range, got %d", len(samples))
	}
	if !samples[0].CreatedAt.Equal(base.Add(20*time.Second)) || !samples[10].CreatedAt.Equal(base.Add(10*time.Second)) {
		t.Errorf("expected newest first between both bounds, got %v .. %v", samples[0].CreatedAt, samples[10].CreatedAt)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].CreatedAt.After(samples[i-1].CreatedAt) {
			t.Fatalf("samples out of order at %d", i)
		}
	}

	limited, err := repo.QueryHistory(ctx, repository.HistoryFilter{DriverID: driverID, Limit: 5})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(limited) != 5 || !limited[0].CreatedAt.Equal(base.Add(29*time.Second)) {
		t.Errorf("expected the 5 newest samples, got %d starting at %v", len(limited), limited[0].CreatedAt)
	}
}

func TestDriverRepository_SetCurrentLocationStaleGuard(t *testing.T) {
	db := openTestDB(t)
	driverID := createTestDriver(t, db)
	repo := NewDriverRepository(db)
	ctx := context.Background()

	paris := domain.GeoPoint{Longitude: 2.3522, Latitude: 48.8566}
	eiffel := domain.GeoPoint{Longitude: 2.2945, Latitude: 48.8584}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	write, err := repo.SetCurrentLocation(ctx, driverID, paris, at, true)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if !write.Applied || write.Status != domain.DriverStatusAvailable {
		t.Errorf("expected applied write flipping offline to available, got %+v", write)
	}

	write, err = repo.SetCurrentLocation(ctx, driverID, eiffel, at.Add(-time.Minute), true)
	if err != nil {
		t.Fatalf("stale write: %v", err)
	}
	if write.Applied {
		t.Error("expected the older write to be ignored")
	}
	driver, err := repo.GetByID(ctx, driverID)
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if driver.Location == nil || *driver.Location != paris || !driver.LastLocationUpdate.Equal(at) {
		t.Errorf("expected position to stay at %v@%v, got %v@%v", paris, at, driver.Location, driver.LastLocationUpdate)
	}

	write, err = repo.SetCurrentLocation(ctx, driverID, eiffel, at.Add(-time.Minute), false)
	if err != nil {
		t.Fatalf("last-write-wins write: %v", err)
	}
	if !write.Applied {
		t.Error("expected the write to apply without the stale guard")
	}

	if _, err := repo.SetCurrentLocation(ctx, uuid.New().String(), paris, at, true); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown driver, got %v", err)
	}
}

func TestDeliveryRepository_GuardedTransitions(t *testing.T) {
	db := openTestDB(t)
	driverID := createTestDriver(t, db)
	repo := NewDeliveryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	delivery := &domain.Delivery{
		ID:           uuid.New().String(),
		OrderID:      "order-" + uuid.New().String(),
		CustomerName: "Lea",
		Address:      "1 rue de Rivoli",
		Status:       domain.DeliveryStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, delivery); err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM deliveries WHERE id = $1`, delivery.ID)
	})

	err := repo.UpdateStatus(ctx, delivery.ID, domain.DeliveryStatusAssigned, domain.DeliveryStatusPicked, now)
	if !errors.Is(err, repository.ErrStatusChanged) {
		t.Errorf("expected ErrStatusChanged from a mismatched status, got %v", err)
	}
	if err := repo.Assign(ctx, delivery.ID, driverID, now); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := repo.Assign(ctx, delivery.ID, driverID, now); !errors.Is(err, repository.ErrStatusChanged) {
		t.Errorf("expected second assign to hit ErrStatusChanged, got %v", err)
	}
	if err := repo.Assign(ctx, uuid.New().String(), driverID, now); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown delivery, got %v", err)
	}

	picked := now.Add(time.Minute)
	if err := repo.UpdateStatus(ctx, delivery.ID, domain.DeliveryStatusAssigned, domain.DeliveryStatusPicked, picked); err != nil {
		t.Fatalf("pick up: %v", err)
	}
	got, err := repo.GetByID(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if got.Status != domain.DeliveryStatusPicked || got.DriverID != driverID || !got.PickedAt.Equal(picked) || !got.AssignedAt.Equal(now) {
		t.Errorf("unexpected delivery after pick up: %+v", got)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
