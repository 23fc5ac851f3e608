package domain

import "time"

// Role represents what an account is allowed to do.
type Role string

const (
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// User is an account that can authenticate against the API.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
