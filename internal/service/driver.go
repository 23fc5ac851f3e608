package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"courier/internal/domain"
	"courier/internal/redis"
	"courier/internal/repository"
)

// DriverService handles driver availability.
type DriverService struct {
	index      redis.PositionIndex
	cache      redis.DriverCache
	driverRepo repository.DriverRepository
	logger     logrus.FieldLogger
}

// NewDriverService creates a new DriverService. cache may be nil.
func NewDriverService(
	index redis.PositionIndex,
	cache redis.DriverCache,
	driverRepo repository.DriverRepository,
) *DriverService {
	return &DriverService{
		index:      index,
		cache:      cache,
		driverRepo: driverRepo,
		logger:     logrus.StandardLogger(),
	}
}

// SetStatus changes a driver's availability and keeps the spatial index in
// step: only available drivers with a known position are indexed.
func (s *DriverService) SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !status.Valid() {
		return nil, ErrInvalidDriverStatus
	}

	if err := s.driverRepo.UpdateStatus(ctx, driverID, status); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.InvalidateDriver(ctx, driverID)
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	if status == domain.DriverStatusAvailable && driver.HasLocation() {
		err = s.index.Upsert(ctx, driverID, *driver.Location)
	} else {
		err = s.index.Remove(ctx, driverID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("driver_id", driverID).Error("update spatial index")
	}

	return driver, nil
}
