package tests

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
	"courier/internal/service"
)

var (
	paris   = domain.GeoPoint{Longitude: 2.3522, Latitude: 48.8566}
	eiffel  = domain.GeoPoint{Longitude: 2.2945, Latitude: 48.8584}
	newYork = domain.GeoPoint{Longitude: -74.0060, Latitude: 40.7128}

	baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func floatPtr(f float64) *float64 { return &f }

type trackingFixture struct {
	drivers    *MockDriverRepository
	locations  *MockLocationRepository
	deliveries *MockDeliveryRepository
	index      *MockPositionIndex
	cache      *MockDriverCache
	publisher  *MockPublisher
	service    *service.TrackingService
}

func newTrackingFixture(policy service.TrackingPolicy) *trackingFixture {
	f := &trackingFixture{
		drivers:    NewMockDriverRepository(),
		locations:  NewMockLocationRepository(),
		deliveries: NewMockDeliveryRepository(),
		index:      NewMockPositionIndex(),
		cache:      NewMockDriverCache(),
		publisher:  NewMockPublisher(),
	}
	f.service = service.NewTrackingService(
		f.drivers, f.locations, f.deliveries, f.index, f.cache, f.publisher, policy,
	).WithClock(stepClock(baseTime, time.Second)).WithLogger(quietLogger())
	return f
}

func (f *trackingFixture) addDriver(id string, status domain.DriverStatus) {
	f.drivers.AddDriver(&domain.Driver{
		ID:      id,
		Name:    "Driver " + id,
		Status:  status,
		Vehicle: domain.VehicleMotorbike,
	})
}

func (f *trackingFixture) report(id string, p domain.GeoPoint) service.UpdateLocationRequest {
	return service.UpdateLocationRequest{
		DriverID:    id,
		Coordinates: []float64{p.Longitude, p.Latitude},
	}
}
