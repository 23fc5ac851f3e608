package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/middleware"
	"courier/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService) *DriverHandler {
	return &DriverHandler{driverService: driverService}
}

// UpdateStatusRequest is the HTTP request body for changing availability.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateMyStatus handles PATCH /v1/drivers/me/status
func (h *DriverHandler) UpdateMyStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	driver, err := h.driverService.SetStatus(c.Request.Context(), middleware.GetUserID(c), domain.DriverStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newDriverView(driver))
}
