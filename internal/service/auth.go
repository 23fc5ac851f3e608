package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"courier/internal/domain"
	"courier/internal/repository"
	"courier/internal/repository/postgres"
)

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService registers drivers and issues tokens.
type AuthService struct {
	db         *sql.DB
	userRepo   repository.UserRepository
	driverRepo repository.DriverRepository
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewAuthService creates a new AuthService. When db is non-nil, registration
// writes the account and the driver profile in one transaction.
func NewAuthService(
	db *sql.DB,
	userRepo repository.UserRepository,
	driverRepo repository.DriverRepository,
	secret string,
	ttl time.Duration,
) *AuthService {
	return &AuthService{
		db:         db,
		userRepo:   userRepo,
		driverRepo: driverRepo,
		secret:     []byte(secret),
		ttl:        ttl,
		now:        time.Now,
	}
}

// RegisterRequest contains the signup fields of a driver.
type RegisterRequest struct {
	Name         string
	Email        string
	Phone        string
	Password     string
	Vehicle      domain.VehicleKind
	LicensePlate string
}

// Register creates a driver account and its offline tracking profile.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if strings.TrimSpace(req.Name) == "" || email == "" || req.Password == "" {
		return nil, ErrInvalidRegistration
	}
	vehicle := req.Vehicle
	if vehicle == "" {
		vehicle = domain.VehicleMotorbike
	}
	if !vehicle.Valid() {
		return nil, ErrInvalidRegistration
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         domain.RoleDriver,
		CreatedAt:    s.now().UTC(),
	}
	driver := &domain.Driver{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Phone:        user.Phone,
		Status:       domain.DriverStatusOffline,
		Vehicle:      vehicle,
		LicensePlate: req.LicensePlate,
	}

	if s.db == nil {
		err = s.createDriverAccount(ctx, s.userRepo, s.driverRepo, user, driver)
	} else {
		err = s.createDriverAccountTx(ctx, user, driver)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) createDriverAccountTx(ctx context.Context, user *domain.User, driver *domain.Driver) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	userRepo := postgres.NewUserRepositoryWithTx(tx)
	driverRepo := postgres.NewDriverRepositoryWithTx(tx)
	if err := s.createDriverAccount(ctx, userRepo, driverRepo, user, driver); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AuthService) createDriverAccount(
	ctx context.Context,
	userRepo repository.UserRepository,
	driverRepo repository.DriverRepository,
	user *domain.User,
	driver *domain.Driver,
) error {
	if err := userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	if err := driverRepo.Create(ctx, driver); err != nil {
		return fmt.Errorf("create driver profile: %w", err)
	}
	return nil
}

// EnsureAdmin creates an admin account unless the email is already registered.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return ErrInvalidRegistration
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.userRepo.Create(ctx, &domain.User{
		ID:           uuid.New().String(),
		Name:         "admin",
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	return err
}

// Login checks the credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs a token for the user.
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates a raw token and returns its claims.
func (s *AuthService) ParseToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
