package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage/memory"
)

func newTestService(guard *LoginGuard) *Service {
	return New(memory.New(), guard, Config{
		JWTSecret: []byte("users-test-secret"),
		TokenTTL:  time.Hour,
		Issuer:    "island-rides-test",
	}, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	created, token, err := svc.Register(ctx, "Renter@Example.com", "s3cret-password", "Ann", "Rolle", user.RoleRenter)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "renter@example.com" {
		t.Fatalf("email not normalized: %q", created.Email)
	}
	if created.PasswordHash == "s3cret-password" {
		t.Fatal("password stored in plaintext")
	}
	if token == "" {
		t.Fatal("register should issue a token")
	}

	u, token, err := svc.Login(ctx, "renter@example.com", "s3cret-password", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("login returned user %q, want %q", u.ID, created.ID)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("users-test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token should verify: %v", err)
	}
	if claims.UserID != created.ID || claims.Role != "renter" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "island-rides-test" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		role     user.Role
	}{
		{"empty email", "", "s3cret-password", user.RoleRenter},
		{"no at sign", "not-an-email", "s3cret-password", user.RoleRenter},
		{"short password", "a@b.com", "short", user.RoleRenter},
		{"admin role", "a@b.com", "s3cret-password", user.RoleAdmin},
		{"unknown role", "a@b.com", "s3cret-password", user.Role("pirate")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, tt.email, tt.password, "", "", tt.role); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "dup@example.com", "s3cret-password", "", "", user.RoleRenter); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := svc.Register(ctx, "dup@example.com", "other-password", "", "", user.RoleOwner)
	if !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "renter@example.com", "s3cret-password", "", "", user.RoleRenter); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "renter@example.com", "wrong", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "ghost@example.com", "whatever", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginLockout(t *testing.T) {
	guard := NewLoginGuard(3, time.Minute)
	svc := newTestService(guard)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "renter@example.com", "s3cret-password", "", "", user.RoleRenter); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Login(ctx, "renter@example.com", "wrong", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v", i, err)
		}
	}

	// Correct password is refused while locked.
	if _, _, err := svc.Login(ctx, "renter@example.com", "s3cret-password", "10.0.0.1"); !errors.Is(err, ErrLoginLocked) {
		t.Fatalf("locked err = %v, want ErrLoginLocked", err)
	}

	// Another client IP is unaffected.
	if _, _, err := svc.Login(ctx, "renter@example.com", "s3cret-password", "10.0.0.2"); err != nil {
		t.Fatalf("other IP should log in: %v", err)
	}
}

func TestLoginSuccessResetsGuard(t *testing.T) {
	guard := NewLoginGuard(3, time.Minute)
	svc := newTestService(guard)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "renter@example.com", "s3cret-password", "", "", user.RoleRenter); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, _, _ = svc.Login(ctx, "renter@example.com", "wrong", "10.0.0.1")
	}
	if _, _, err := svc.Login(ctx, "renter@example.com", "s3cret-password", "10.0.0.1"); err != nil {
		t.Fatalf("login before lock: %v", err)
	}

	// History cleared; two more failures do not lock.
	for i := 0; i < 2; i++ {
		_, _, _ = svc.Login(ctx, "renter@example.com", "wrong", "10.0.0.1")
	}
	if _, _, err := svc.Login(ctx, "renter@example.com", "s3cret-password", "10.0.0.1"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestRegisterDefaultsToRenter(t *testing.T) {
	svc := newTestService(nil)
	created, _, err := svc.Register(context.Background(), "a@b.com", "s3cret-password", "", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Role != user.RoleRenter {
		t.Fatalf("role = %q, want renter", created.Role)
	}
}
