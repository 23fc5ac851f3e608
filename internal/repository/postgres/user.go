package postgres

import (
	"context"
	"database/sql"
	"strings"

	"courier/internal/domain"
	"courier/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// Create adds a new account.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Name,
		strings.ToLower(user.Email),
		nullString(user.Phone),
		user.PasswordHash,
		user.Role,
		user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID retrieves an account by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email, COALESCE(phone, ''), password_hash, role, created_at FROM users WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetByEmail retrieves an account by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT id, name, email, COALESCE(phone, ''), password_hash, role, created_at FROM users WHERE email = $1`
	return r.get(ctx, query, strings.ToLower(email))
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Ensure UserRepository implements repository.UserRepository.
var _ repository.UserRepository = (*UserRepository)(nil)
