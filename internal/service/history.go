package service

import (
	"context"
	"fmt"
	"time"

	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/repository"
)

const (
	// DefaultHistoryLimit is the number of samples returned when no limit is given.
	DefaultHistoryLimit = 100
	// MaxHistoryLimit bounds one history page.
	MaxHistoryLimit = 1000
)

// HistoryService reads a driver's past positions and a delivery's path.
type HistoryService struct {
	locationRepo repository.LocationRepository
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(locationRepo repository.LocationRepository) *HistoryService {
	return &HistoryService{locationRepo: locationRepo}
}

// HistoryQuery selects a page of a driver's history. Zero Start/End leave
// that side of the range open; zero Limit selects DefaultHistoryLimit.
type HistoryQuery struct {
	DriverID string
	Start    time.Time
	End      time.Time
	Limit    int
}

// History returns the driver's samples newest first. A driver without
// samples yields an empty slice.
func (s *HistoryService) History(ctx context.Context, q HistoryQuery) ([]*domain.LocationSample, error) {
	if q.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.Start.After(q.End) {
		return nil, ErrInvalidTimeRange
	}

	limit := q.Limit
	switch {
	case limit < 0:
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	samples, err := s.locationRepo.QueryHistory(ctx, repository.HistoryFilter{
		DriverID: q.DriverID,
		Start:    q.Start,
		End:      q.End,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if samples == nil {
		samples = []*domain.LocationSample{}
	}
	return samples, nil
}

// DeliveryPath is the chronological trace of a delivery.
type DeliveryPath struct {
	DeliveryID   string
	Samples      []*domain.LocationSample
	LengthMeters float64
}

// Path returns every sample linked to the delivery, oldest first, and the
// haversine length of the trace.
func (s *HistoryService) Path(ctx context.Context, deliveryID string) (*DeliveryPath, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	samples, err := s.locationRepo.QueryPath(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("query path: %w", err)
	}
	if samples == nil {
		samples = []*domain.LocationSample{}
	}

	points := make([]domain.GeoPoint, len(samples))
	for i, sample := range samples {
		points[i] = sample.Location
	}

	return &DeliveryPath{
		DeliveryID:   deliveryID,
		Samples:      samples,
		LengthMeters: geo.RoundDistance(geo.PathLength(points)),
	}, nil
}
