package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"courier/internal/domain"
	"courier/internal/repository"
)

// deliveryTransitions lists the statuses each status may move to.
var deliveryTransitions = map[domain.DeliveryStatus][]domain.DeliveryStatus{
	domain.DeliveryStatusPending:   {domain.DeliveryStatusAssigned, domain.DeliveryStatusCancelled},
	domain.DeliveryStatusAssigned:  {domain.DeliveryStatusPicked, domain.DeliveryStatusCancelled},
	domain.DeliveryStatusPicked:    {domain.DeliveryStatusInTransit, domain.DeliveryStatusCancelled},
	domain.DeliveryStatusInTransit: {domain.DeliveryStatusDelivered, domain.DeliveryStatusCancelled},
}

// DeliveryService manages delivery orders. Location samples are linked to
// a driver's delivery while it is assigned, picked or in transit.
type DeliveryService struct {
	deliveryRepo repository.DeliveryRepository
	driverRepo   repository.DriverRepository
	now          func() time.Time
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(deliveryRepo repository.DeliveryRepository, driverRepo repository.DriverRepository) *DeliveryService {
	return &DeliveryService{
		deliveryRepo: deliveryRepo,
		driverRepo:   driverRepo,
		now:          time.Now,
	}
}

// CreateDeliveryRequest contains the parameters for a new delivery.
type CreateDeliveryRequest struct {
	OrderID      string
	CustomerName string
	Address      string
	Phone        string
	DriverID     string // optional; assigns the delivery immediately
	Notes        string
}

// Create registers a delivery, pending or assigned to DriverID.
func (s *DeliveryService) Create(ctx context.Context, req CreateDeliveryRequest) (*domain.Delivery, error) {
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.Address) == "" {
		return nil, ErrInvalidDelivery
	}

	now := s.now().UTC()
	delivery := &domain.Delivery{
		ID:           uuid.New().String(),
		OrderID:      strings.TrimSpace(req.OrderID),
		CustomerName: req.CustomerName,
		Address:      req.Address,
		Phone:        req.Phone,
		Status:       domain.DeliveryStatusPending,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if req.DriverID != "" {
		if _, err := s.driverRepo.GetByID(ctx, req.DriverID); err != nil {
			return nil, err
		}
		delivery.DriverID = req.DriverID
		delivery.Status = domain.DeliveryStatusAssigned
		delivery.AssignedAt = now
	}

	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		return nil, err
	}
	return delivery, nil
}

// Get retrieves a delivery by ID.
func (s *DeliveryService) Get(ctx context.Context, id string) (*domain.Delivery, error) {
	if id == "" {
		return nil, ErrInvalidDeliveryID
	}
	return s.deliveryRepo.GetByID(ctx, id)
}

// UpdateDeliveryStatusRequest moves a delivery along its lifecycle.
type UpdateDeliveryStatusRequest struct {
	DeliveryID string
	Status     domain.DeliveryStatus
	ActorID    string
	ActorRole  domain.Role
}

// UpdateStatus applies a forward transition. Drivers may only update
// deliveries assigned to them; admins may update any delivery.
func (s *DeliveryService) UpdateStatus(ctx context.Context, req UpdateDeliveryStatusRequest) (*domain.Delivery, error) {
	if req.DeliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}
	if !req.Status.Valid() {
		return nil, ErrInvalidDeliveryStatus
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}

	if req.ActorRole != domain.RoleAdmin && delivery.DriverID != req.ActorID {
		return nil, ErrDeliveryNotAssignedToDriver
	}
	if !canTransition(delivery.Status, req.Status) {
		return nil, ErrInvalidDeliveryTransition
	}
	if req.Status == domain.DeliveryStatusAssigned && delivery.DriverID == "" {
		return nil, ErrInvalidDeliveryTransition
	}

	now := s.now().UTC()
	if err := s.deliveryRepo.UpdateStatus(ctx, delivery.ID, delivery.Status, req.Status, now); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, ErrInvalidDeliveryTransition
		}
		return nil, err
	}

	delivery.Status = req.Status
	delivery.UpdatedAt = now
	switch req.Status {
	case domain.DeliveryStatusAssigned:
		delivery.AssignedAt = now
	case domain.DeliveryStatusPicked:
		delivery.PickedAt = now
	case domain.DeliveryStatusDelivered:
		delivery.DeliveredAt = now
	}
	return delivery, nil
}

// Assign hands a pending delivery to a driver.
func (s *DeliveryService) Assign(ctx context.Context, deliveryID, driverID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	delivery, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.Status != domain.DeliveryStatusPending {
		return nil, ErrInvalidDeliveryTransition
	}
	if _, err := s.driverRepo.GetByID(ctx, driverID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.deliveryRepo.Assign(ctx, delivery.ID, driverID, now); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, ErrInvalidDeliveryTransition
		}
		return nil, err
	}

	delivery.DriverID = driverID
	delivery.Status = domain.DeliveryStatusAssigned
	delivery.AssignedAt = now
	delivery.UpdatedAt = now
	return delivery, nil
}

func canTransition(from, to domain.DeliveryStatus) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
