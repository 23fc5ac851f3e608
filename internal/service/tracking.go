package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"courier/internal/domain"
	"courier/internal/events"
	"courier/internal/geo"
	"courier/internal/redis"
	"courier/internal/repository"
)

// DefaultHistoryCap is the number of samples kept per driver.
const DefaultHistoryCap = 1000

// TrackingPolicy controls retention and ordering of location updates.
type TrackingPolicy struct {
	// HistoryCap is the number of newest samples kept per driver.
	HistoryCap int
	// TrimInline trims a driver's history right after each append. When
	// false the retention sweeper is responsible for trimming.
	TrimInline bool
	// RejectStale ignores current-position writes older than the stored one.
	RejectStale bool
}

// DefaultTrackingPolicy trims inline at DefaultHistoryCap with last-write-wins.
func DefaultTrackingPolicy() TrackingPolicy {
	return TrackingPolicy{HistoryCap: DefaultHistoryCap, TrimInline: true}
}

// TrackingService ingests location updates and serves current positions.
type TrackingService struct {
	driverRepo   repository.DriverRepository
	locationRepo repository.LocationRepository
	deliveryRepo repository.DeliveryRepository
	index        redis.PositionIndex
	cache        redis.DriverCache
	publisher    events.Publisher
	policy       TrackingPolicy
	logger       logrus.FieldLogger
	now          func() time.Time
}

// NewTrackingService creates a new TrackingService. cache and publisher may be nil.
func NewTrackingService(
	driverRepo repository.DriverRepository,
	locationRepo repository.LocationRepository,
	deliveryRepo repository.DeliveryRepository,
	index redis.PositionIndex,
	cache redis.DriverCache,
	publisher events.Publisher,
	policy TrackingPolicy,
) *TrackingService {
	if policy.HistoryCap <= 0 {
		policy.HistoryCap = DefaultHistoryCap
	}
	return &TrackingService{
		driverRepo:   driverRepo,
		locationRepo: locationRepo,
		deliveryRepo: deliveryRepo,
		index:        index,
		cache:        cache,
		publisher:    publisher,
		policy:       policy,
		logger:       logrus.StandardLogger(),
		now:          time.Now,
	}
}

// WithClock replaces the server clock. Used by tests.
func (s *TrackingService) WithClock(now func() time.Time) *TrackingService {
	s.now = now
	return s
}

// WithLogger replaces the logger.
func (s *TrackingService) WithLogger(logger logrus.FieldLogger) *TrackingService {
	s.logger = logger
	return s
}

// UpdateLocationRequest contains a position report from a driver.
type UpdateLocationRequest struct {
	DriverID     string
	Coordinates  []float64 // [longitude, latitude]
	Accuracy     *float64
	Speed        *float64
	Heading      *float64
	Altitude     *float64
	BatteryLevel *float64
	IsCharging   bool
	Source       string
	Timestamp    *time.Time // client clock
}

// UpdateLocationResult describes what an update changed.
type UpdateLocationResult struct {
	Sample  *domain.LocationSample
	Status  domain.DriverStatus
	Applied bool
}

// UpdateLocation validates a report, overwrites the driver's current
// position, appends the sample to history and trims the history.
func (s *TrackingService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) (*UpdateLocationResult, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	point, err := geo.ValidatePair(req.Coordinates)
	if err != nil {
		return nil, err
	}
	if err := validateTelemetry(req); err != nil {
		return nil, err
	}
	source := domain.LocationSource(req.Source)
	if source == "" {
		source = domain.LocationSourceGPS
	}
	if !source.Valid() {
		return nil, ErrInvalidLocationSource
	}

	now := s.now().UTC()
	at := now
	// A client clock ahead of ours would otherwise lock out every later
	// update until real time caught up.
	if s.policy.RejectStale && req.Timestamp != nil && req.Timestamp.Before(now) {
		at = req.Timestamp.UTC()
	}

	log := s.logger.WithField("driver_id", req.DriverID)

	write, err := s.driverRepo.SetCurrentLocation(ctx, req.DriverID, point, at, s.policy.RejectStale)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set current location: %w", err)
	}

	delivery, err := s.deliveryRepo.FindActiveForDriver(ctx, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("find active delivery: %w", err)
	}

	sample := &domain.LocationSample{
		ID:           uuid.New().String(),
		DriverID:     req.DriverID,
		Location:     point,
		Accuracy:     req.Accuracy,
		Speed:        req.Speed,
		Heading:      req.Heading,
		Altitude:     req.Altitude,
		BatteryLevel: req.BatteryLevel,
		IsCharging:   req.IsCharging,
		Source:       source,
		RecordedAt:   req.Timestamp,
		CreatedAt:    now,
	}
	if delivery != nil {
		sample.DeliveryID = delivery.ID
	}

	if err := s.locationRepo.Append(ctx, sample); err != nil {
		return nil, fmt.Errorf("append location sample: %w", err)
	}

	if s.policy.TrimInline {
		s.trim(ctx, log, req.DriverID)
	}

	if write.Applied {
		s.syncIndex(ctx, log, req.DriverID, point, write.Status)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateDriver(ctx, req.DriverID); err != nil {
			log.WithError(err).Warn("invalidate driver cache")
		}
	}

	if s.publisher != nil {
		event := events.LocationUpdated{
			DriverID:   req.DriverID,
			DeliveryID: sample.DeliveryID,
			Longitude:  point.Longitude,
			Latitude:   point.Latitude,
			Status:     string(write.Status),
			Applied:    write.Applied,
			RecordedAt: now,
		}
		if err := s.publisher.PublishLocation(ctx, event); err != nil {
			log.WithError(err).Warn("publish location event")
		}
	}

	return &UpdateLocationResult{
		Sample:  sample,
		Status:  write.Status,
		Applied: write.Applied,
	}, nil
}

// trim enforces the history cap. Failures never fail the triggering write.
func (s *TrackingService) trim(ctx context.Context, log logrus.FieldLogger, driverID string) {
	deleted, err := s.locationRepo.Trim(ctx, driverID, s.policy.HistoryCap)
	if err != nil {
		log.WithError(err).Warn("trim location history")
		return
	}
	if deleted > 0 {
		log.WithField("deleted", deleted).Debug("trimmed location history")
	}
}

// syncIndex keeps only available drivers in the spatial index. Postgres stays
// authoritative; a failed index write is repaired by the next Reindex.
func (s *TrackingService) syncIndex(ctx context.Context, log logrus.FieldLogger, driverID string, point domain.GeoPoint, status domain.DriverStatus) {
	var err error
	if status == domain.DriverStatusAvailable {
		err = s.index.Upsert(ctx, driverID, point)
	} else {
		err = s.index.Remove(ctx, driverID)
	}
	if err != nil {
		log.WithError(err).Error("update spatial index")
	}
}

// GetCurrent returns the driver's profile with its current position.
// Returns repository.ErrNotFound if the driver never reported a location.
func (s *TrackingService) GetCurrent(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver := s.cachedDriver(ctx, driverID)
	if driver == nil {
		var err error
		driver, err = s.driverRepo.GetByID(ctx, driverID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.SetDriver(ctx, driver)
		}
	}

	if !driver.HasLocation() {
		return nil, fmt.Errorf("driver %s has no recorded location: %w", driverID, repository.ErrNotFound)
	}
	return driver, nil
}

func (s *TrackingService) cachedDriver(ctx context.Context, driverID string) *domain.Driver {
	if s.cache == nil {
		return nil
	}
	driver, err := s.cache.GetDriver(ctx, driverID)
	if err != nil {
		s.logger.WithError(err).WithField("driver_id", driverID).Debug("driver cache read")
		return nil
	}
	return driver
}

func validateTelemetry(req UpdateLocationRequest) error {
	if req.Heading != nil && (*req.Heading < 0 || *req.Heading > 360) {
		return fmt.Errorf("%w: heading %g outside [0, 360]", ErrInvalidTelemetry, *req.Heading)
	}
	if req.BatteryLevel != nil && (*req.BatteryLevel < 0 || *req.BatteryLevel > 100) {
		return fmt.Errorf("%w: battery level %g outside [0, 100]", ErrInvalidTelemetry, *req.BatteryLevel)
	}
	if req.Accuracy != nil && *req.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidTelemetry)
	}
	if req.Speed != nil && *req.Speed < 0 {
		return fmt.Errorf("%w: negative speed", ErrInvalidTelemetry)
	}
	return nil
}
