package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/middleware"
	"courier/internal/service"
)

// DeliveryHandler handles HTTP requests for deliveries.
type DeliveryHandler struct {
	deliveryService *service.DeliveryService
	historyService  *service.HistoryService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(deliveryService *service.DeliveryService, historyService *service.HistoryService) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService: deliveryService,
		historyService:  historyService,
	}
}

// CreateDeliveryRequest is the HTTP request body for a new delivery.
type CreateDeliveryRequest struct {
	OrderID      string `json:"orderId"`
	CustomerName string `json:"customerName"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	DriverID     string `json:"driverId"`
	Notes        string `json:"notes"`
}

// UpdateDeliveryStatusRequest is the HTTP request body for a status change.
type UpdateDeliveryStatusRequest struct {
	Status string `json:"status"`
}

// AssignDeliveryRequest is the HTTP request body for assigning a driver.
type AssignDeliveryRequest struct {
	DriverID string `json:"driverId"`
}

// DeliveryResponse is the HTTP response for delivery data.
type DeliveryResponse struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"orderId"`
	CustomerName string     `json:"customerName"`
	Address      string     `json:"address"`
	Phone        string     `json:"phone,omitempty"`
	DriverID     string     `json:"driverId,omitempty"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty"`
	PickedAt     *time.Time `json:"pickedAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newDeliveryResponse(d *domain.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:           d.ID,
		OrderID:      d.OrderID,
		CustomerName: d.CustomerName,
		Address:      d.Address,
		Phone:        d.Phone,
		DriverID:     d.DriverID,
		Status:       string(d.Status),
		Notes:        d.Notes,
		AssignedAt:   optionalTime(d.AssignedAt),
		PickedAt:     optionalTime(d.PickedAt),
		DeliveredAt:  optionalTime(d.DeliveredAt),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Create handles POST /v1/deliveries
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	delivery, err := h.deliveryService.Create(c.Request.Context(), service.CreateDeliveryRequest{
		OrderID:      req.OrderID,
		CustomerName: req.CustomerName,
		Address:      req.Address,
		Phone:        req.Phone,
		DriverID:     req.DriverID,
		Notes:        req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newDeliveryResponse(delivery))
}

// Get handles GET /v1/deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
	delivery, err := h.deliveryService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDeliveryResponse(delivery))
}

// UpdateStatus handles PATCH /v1/deliveries/:id/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	var req UpdateDeliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	delivery, err := h.deliveryService.UpdateStatus(c.Request.Context(), service.UpdateDeliveryStatusRequest{
		DeliveryID: c.Param("id"),
		Status:     domain.DeliveryStatus(req.Status),
		ActorID:    middleware.GetUserID(c),
		ActorRole:  middleware.GetRole(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDeliveryResponse(delivery))
}

// Assign handles PATCH /v1/deliveries/:id/assign
func (h *DeliveryHandler) Assign(c *gin.Context) {
	var req AssignDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	delivery, err := h.deliveryService.Assign(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDeliveryResponse(delivery))
}

// Path handles GET /v1/deliveries/:id/path
func (h *DeliveryHandler) Path(c *gin.Context) {
	path, err := h.historyService.Path(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, pathCollection(path))
}
