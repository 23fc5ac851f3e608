package repository

import (
	"context"

	"courier/internal/domain"
)

// UserRepository defines the persistence operations for accounts.
type UserRepository interface {
	// Create persists a new account. Returns ErrConflict if the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves an account by its (lower-cased) email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
