package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/domain"
	"courier/internal/events"
	"courier/internal/geo"
	"courier/internal/redis"
	"courier/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	// Counters for verification
	SetCurrentLocationCallCount int32
	UpdateStatusCallCount       int32

	// Error injection
	CreateError             error
	GetByIDsError           error
	SetCurrentLocationError error
	UpdateStatusError       error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
}

func (m *MockDriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[driver.ID]; ok {
		return repository.ErrConflict
	}
	copy := *driver
	m.drivers[driver.ID] = &copy
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyDriver(driver), nil
}

func (m *MockDriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	if m.GetByIDsError != nil {
		return nil, m.GetByIDsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			result = append(result, copyDriver(d))
		}
	}
	return result, nil
}

func (m *MockDriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Status = status
	return nil
}

func (m *MockDriverRepository) SetCurrentLocation(ctx context.Context, id string, point domain.GeoPoint, at time.Time, rejectStale bool) (repository.LocationWrite, error) {
	atomic.AddInt32(&m.SetCurrentLocationCallCount, 1)
	if m.SetCurrentLocationError != nil {
		return repository.LocationWrite{}, m.SetCurrentLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.LocationWrite{}, repository.ErrNotFound
	}
	if rejectStale && !driver.LastLocationUpdate.IsZero() && at.Before(driver.LastLocationUpdate) {
		return repository.LocationWrite{Status: driver.Status, Applied: false}, nil
	}
	p := point
	driver.Location = &p
	driver.LastLocationUpdate = at
	if driver.Status == domain.DriverStatusOffline {
		driver.Status = domain.DriverStatusAvailable
	}
	return repository.LocationWrite{Status: driver.Status, Applied: true}, nil
}

func (m *MockDriverRepository) ListAvailableWithLocation(ctx context.Context) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Driver
	for _, d := range m.drivers {
		if d.Status == domain.DriverStatusAvailable && d.HasLocation() {
			result = append(result, copyDriver(d))
		}
	}
	return result, nil
}

// GetDriver returns driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.drivers[id]; ok {
		return copyDriver(d)
	}
	return nil
}

func copyDriver(d *domain.Driver) *domain.Driver {
	copy := *d
	if d.Location != nil {
		loc := *d.Location
		copy.Location = &loc
	}
	return &copy
}

// ──────────────────────────────────────────────
// MOCK LOCATION REPOSITORY
// ──────────────────────────────────────────────

// MockLocationRepository is a mock implementation of LocationRepository.
// Samples are kept in append order.
type MockLocationRepository struct {
	mu      sync.RWMutex
	samples []*domain.LocationSample

	// Counters for verification
	AppendCallCount int32
	TrimCallCount   int32

	// Error injection
	AppendError error
	TrimError   error
	QueryError  error
}

// NewMockLocationRepository creates a new mock location repository.
func NewMockLocationRepository() *MockLocationRepository {
	return &MockLocationRepository{}
}

func (m *MockLocationRepository) Append(ctx context.Context, sample *domain.LocationSample) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *sample
	m.samples = append(m.samples, &copy)
	return nil
}

func (m *MockLocationRepository) Trim(ctx context.Context, driverID string, keep int) (int64, error) {
	atomic.AddInt32(&m.TrimCallCount, 1)
	if m.TrimError != nil {
		return 0, m.TrimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := m.newestFirst(driverID)
	if len(newest) <= keep {
		return 0, nil
	}
	drop := make(map[*domain.LocationSample]bool, len(newest)-keep)
	for _, s := range newest[keep:] {
		drop[s] = true
	}
	kept := m.samples[:0]
	for _, s := range m.samples {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	m.samples = kept
	return int64(len(drop)), nil
}

func (m *MockLocationRepository) QueryHistory(ctx context.Context, filter repository.HistoryFilter) ([]*domain.LocationSample, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.LocationSample
	for _, s := range m.newestFirst(filter.DriverID) {
		if !filter.Start.IsZero() && s.CreatedAt.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && s.CreatedAt.After(filter.End) {
			continue
		}
		result = append(result, s)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *MockLocationRepository) QueryPath(ctx context.Context, deliveryID string) ([]*domain.LocationSample, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.LocationSample
	for _, s := range m.samples {
		if s.DeliveryID == deliveryID {
			result = append(result, s)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockLocationRepository) DriversOverCap(ctx context.Context, limit int) ([]string, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, s := range m.samples {
		counts[s.DriverID]++
	}
	var result []string
	for id, n := range counts {
		if n > limit {
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result, nil
}

// newestFirst returns a driver's samples by descending CreatedAt; equal
// timestamps keep the later append first. Callers must hold the lock.
func (m *MockLocationRepository) newestFirst(driverID string) []*domain.LocationSample {
	var result []*domain.LocationSample
	for i := len(m.samples) - 1; i >= 0; i-- {
		if m.samples[i].DriverID == driverID {
			result = append(result, m.samples[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of stored samples for a driver.
func (m *MockLocationRepository) Count(driverID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.samples {
		if s.DriverID == driverID {
			n++
		}
	}
	return n
}

// AddSample stores a sample directly, bypassing counters.
func (m *MockLocationRepository) AddSample(sample *domain.LocationSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
}

// ──────────────────────────────────────────────
// MOCK DELIVERY REPOSITORY
// ──────────────────────────────────────────────

// MockDeliveryRepository is a mock implementation of DeliveryRepository.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery

	// Counters for verification
	UpdateStatusCallCount int32
	AssignCallCount       int32

	// Error injection
	CreateError     error
	FindActiveError error
}

// NewMockDeliveryRepository creates a new mock delivery repository.
func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries: make(map[string]*domain.Delivery),
	}
}

// AddDelivery adds a delivery to the mock repository.
func (m *MockDeliveryRepository) AddDelivery(delivery *domain.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[delivery.ID] = delivery
}

func (m *MockDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.OrderID == delivery.OrderID {
			return repository.ErrConflict
		}
	}
	copy := *delivery
	m.deliveries[delivery.ID] = &copy
	return nil
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

func (m *MockDeliveryRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.Status != from {
		return repository.ErrStatusChanged
	}
	d.Status = to
	d.UpdatedAt = at
	switch to {
	case domain.DeliveryStatusAssigned:
		d.AssignedAt = at
	case domain.DeliveryStatusPicked:
		d.PickedAt = at
	case domain.DeliveryStatusDelivered:
		d.DeliveredAt = at
	}
	return nil
}

func (m *MockDeliveryRepository) Assign(ctx context.Context, id, driverID string, at time.Time) error {
	atomic.AddInt32(&m.AssignCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.Status != domain.DeliveryStatusPending {
		return repository.ErrStatusChanged
	}
	d.DriverID = driverID
	d.Status = domain.DeliveryStatusAssigned
	d.AssignedAt = at
	d.UpdatedAt = at
	return nil
}

// SetDeliveryStatus changes a stored delivery's status behind the service's
// back, as a concurrent writer would.
func (m *MockDeliveryRepository) SetDeliveryStatus(id string, status domain.DeliveryStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deliveries[id]; ok {
		d.Status = status
	}
}

func (m *MockDeliveryRepository) FindActiveForDriver(ctx context.Context, driverID string) (*domain.Delivery, error) {
	if m.FindActiveError != nil {
		return nil, m.FindActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.Delivery
	for _, d := range m.deliveries {
		if d.DriverID != driverID || !d.Status.IsActive() {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

// GetDelivery returns delivery for test assertions.
func (m *MockDeliveryRepository) GetDelivery(id string) *domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries[id]
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrConflict
		}
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

// CountUsers returns the number of stored accounts.
func (m *MockUserRepository) CountUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// ──────────────────────────────────────────────
// MOCK POSITION INDEX
// ──────────────────────────────────────────────

// MockPositionIndex wraps the in-process grid with counters and error injection.
type MockPositionIndex struct {
	*geo.GridIndex

	// Counters
	UpsertCallCount int32
	RemoveCallCount int32

	// Error injection
	UpsertError error
	NearbyError error
}

// NewMockPositionIndex creates an empty index.
func NewMockPositionIndex() *MockPositionIndex {
	return &MockPositionIndex{GridIndex: geo.NewGridIndex(0)}
}

func (m *MockPositionIndex) Upsert(ctx context.Context, driverID string, p domain.GeoPoint) error {
	atomic.AddInt32(&m.UpsertCallCount, 1)
	if m.UpsertError != nil {
		return m.UpsertError
	}
	return m.GridIndex.Upsert(ctx, driverID, p)
}

func (m *MockPositionIndex) Remove(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	return m.GridIndex.Remove(ctx, driverID)
}

func (m *MockPositionIndex) Nearby(ctx context.Context, origin domain.GeoPoint, radiusMeters float64, count int) ([]geo.Neighbor, error) {
	if m.NearbyError != nil {
		return nil, m.NearbyError
	}
	return m.GridIndex.Nearby(ctx, origin, radiusMeters, count)
}

// Contains reports whether the driver is indexed (for test assertions).
func (m *MockPositionIndex) Contains(driverID string) bool {
	_, ok := m.GridIndex.Position(driverID)
	return ok
}

// ──────────────────────────────────────────────
// MOCK DRIVER CACHE
// ──────────────────────────────────────────────

// MockDriverCache is an in-memory DriverCache.
type MockDriverCache struct {
	mu      sync.Mutex
	drivers map[string]*domain.Driver

	// Counters
	InvalidateCallCount int32
	HitCount            int32
}

// NewMockDriverCache creates an empty cache.
func NewMockDriverCache() *MockDriverCache {
	return &MockDriverCache{drivers: make(map[string]*domain.Driver)}
}

func (m *MockDriverCache) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return copyDriver(d), nil
}

func (m *MockDriverCache) SetDriver(ctx context.Context, driver *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = copyDriver(driver)
	return nil
}

func (m *MockDriverCache) InvalidateDriver(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, driverID)
	return nil
}

func (m *MockDriverCache) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]*domain.Driver)
	var missing []string
	for _, id := range driverIDs {
		if d, ok := m.drivers[id]; ok {
			atomic.AddInt32(&m.HitCount, 1)
			found[id] = copyDriver(d)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (m *MockDriverCache) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range drivers {
		m.drivers[d.ID] = copyDriver(d)
	}
	return nil
}

// Has reports whether a driver is cached.
func (m *MockDriverCache) Has(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drivers[driverID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]time.Time),
	}
}

func (m *MockLockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return nil, false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return nil, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, exists := m.locks[name]; exists && time.Now().Before(expiry) {
		return nil, false, nil // Lock still held.
	}
	m.locks[name] = time.Now().Add(ttl)

	release := func(context.Context) error {
		atomic.AddInt32(&m.ReleaseCallCount, 1)
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, name)
		return nil
	}
	return release, true, nil
}

// IsLocked checks if a lock is held (for test assertions).
func (m *MockLockStore) IsLocked(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks[name]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []events.LocationUpdated

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishLocation(ctx context.Context, event events.LocationUpdated) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Events returns the published events.
func (m *MockPublisher) Events() []events.LocationUpdated {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.LocationUpdated(nil), m.events...)
}

// Ensure mocks implement interfaces.
var (
	_ repository.DriverRepository   = (*MockDriverRepository)(nil)
	_ repository.LocationRepository = (*MockLocationRepository)(nil)
	_ repository.DeliveryRepository = (*MockDeliveryRepository)(nil)
	_ repository.UserRepository     = (*MockUserRepository)(nil)
	_ redis.PositionIndex           = (*MockPositionIndex)(nil)
	_ redis.DriverCache             = (*MockDriverCache)(nil)
	_ redis.LockStoreInterface      = (*MockLockStore)(nil)
	_ events.Publisher              = (*MockPublisher)(nil)
)
