package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/service"
)

// AuthHandler handles signup and login.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRequest is the HTTP request body for driver signup.
type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	Vehicle      string `json:"vehicle"`
	LicensePlate string `json:"licensePlate"`
}

// LoginRequest is the HTTP request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the HTTP response for account data.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// TokenResponse is the HTTP response for a successful login or signup.
type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Role:  string(u.Role),
	}
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterRequest{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Password:     req.Password,
		Vehicle:      domain.VehicleKind(req.Vehicle),
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authService.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, TokenResponse{Token: token, User: newUserResponse(user)})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TokenResponse{Token: token, User: newUserResponse(user)})
}
