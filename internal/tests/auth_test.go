package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"courier/internal/domain"
	"courier/internal/service"
)

func newAuthService() (*service.AuthService, *MockUserRepository, *MockDriverRepository) {
	users := NewMockUserRepository()
	drivers := NewMockDriverRepository()
	return service.NewAuthService(nil, users, drivers, "test-secret", time.Hour), users, drivers
}

func TestRegister_CreatesOfflineDriver(t *testing.T) {
	t.Parallel()

	svc, _, drivers := newAuthService()

	user, err := svc.Register(context.Background(), service.RegisterRequest{
		Name:     "Amina",
		Email:    "  Amina@Example.com ",
		Password: "s3cret-pass",
		Vehicle:  domain.VehicleCar,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Email != "amina@example.com" {
		t.Errorf("expected normalised email, got %q", user.Email)
	}
	if user.Role != domain.RoleDriver {
		t.Errorf("expected driver role, got %s", user.Role)
	}
	if user.PasswordHash == "s3cret-pass" || user.PasswordHash == "" {
		t.Error("expected password to be hashed")
	}

	driver := drivers.GetDriver(user.ID)
	if driver == nil {
		t.Fatal("expected a driver profile")
	}
	if driver.Status != domain.DriverStatusOffline || driver.HasLocation() {
		t.Errorf("expected offline driver without location, got %+v", driver)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAuthService()
	req := service.RegisterRequest{Name: "Amina", Email: "amina@example.com", Password: "pw"}

	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAuthService()
	for _, req := range []service.RegisterRequest{
		{Email: "a@b.c", Password: "pw"},
		{Name: "Amina", Email: "a@b.c", Password: "pw", Vehicle: "hovercraft"},
	} {
		_, err := svc.Register(context.Background(), req)
		if !errors.Is(err, service.ErrInvalidRegistration) {
			t.Errorf("expected ErrInvalidRegistration, got %v", err)
		}
	}
	if users.CountUsers() != 0 {
		t.Error("expected no account to be created")
	}
}

func TestLogin_IssuesParsableToken(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAuthService()
	registered, err := svc.Register(context.Background(), service.RegisterRequest{
		Name: "Amina", Email: "amina@example.com", Password: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, user, err := svc.Login(context.Background(), "AMINA@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("expected user %s, got %s", registered.ID, user.ID)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if claims.UserID != registered.ID || claims.Role != domain.RoleDriver {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAuthService()
	_, _ = svc.Register(context.Background(), service.RegisterRequest{
		Name: "Amina", Email: "amina@example.com", Password: "s3cret-pass",
	})

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "amina@example.com", password: "nope"},
		{name: "unknown email", email: "nobody@example.com", password: "s3cret-pass"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := svc.Login(context.Background(), tc.email, tc.password); !errors.Is(err, service.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestParseToken_Rejects(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAuthService()
	other := service.NewAuthService(nil, NewMockUserRepository(), NewMockDriverRepository(), "other-secret", time.Hour)
	expired := service.NewAuthService(nil, NewMockUserRepository(), NewMockDriverRepository(), "test-secret", -time.Minute)

	forged, _ := other.IssueToken(&domain.User{ID: "user-1", Role: domain.RoleAdmin})
	stale, _ := expired.IssueToken(&domain.User{ID: "user-1", Role: domain.RoleDriver})

	for name, raw := range map[string]string{"garbage": "not-a-token", "forged": forged, "expired": stale} {
		if _, err := svc.ParseToken(raw); !errors.Is(err, service.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAuthService()
	for i := 0; i < 2; i++ {
		if err := svc.EnsureAdmin(context.Background(), "ops@example.com", "admin-pass"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if users.CountUsers() != 1 {
		t.Errorf("expected a single admin account, got %d", users.CountUsers())
	}

	_, user, err := svc.Login(context.Background(), "ops@example.com", "admin-pass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Errorf("expected admin role, got %s", user.Role)
	}
}
