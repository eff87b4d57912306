package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrLoginLocked is returned while the login guard holds a key locked.
var ErrLoginLocked = errors.New("too many failed login attempts")

// Claims are the JWT claims issued at login and registration.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Config carries token issuance settings.
type Config struct {
	JWTSecret []byte
	TokenTTL  time.Duration
	Issuer    string
}

// Service manages registration, login and token issuance.
type Service struct {
	store storage.UserStore
	guard *LoginGuard
	cfg   Config
	log   *logger.Logger
}

// New constructs a user service. A nil guard disables login throttling.
func New(store storage.UserStore, guard *LoginGuard, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{store: store, guard: guard, cfg: cfg, log: log}
}

// Register creates an account and returns the user with a signed token.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, role user.Role) (user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return user.User{}, "", fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return user.User{}, "", fmt.Errorf("password must be at least 8 characters")
	}
	if role == "" {
		role = user.RoleRenter
	}
	if !role.Valid() || role == user.RoleAdmin {
		return user.User{}, "", fmt.Errorf("unsupported role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         role,
	})
	if err != nil {
		return user.User{}, "", err
	}

	token, err := s.issueToken(created)
	if err != nil {
		return user.User{}, "", err
	}

	s.log.WithField("user_id", created.ID).
		WithField("role", string(created.Role)).
		Info("user registered")
	return created, token, nil
}

// Login verifies credentials and returns the user with a signed token. The
// clientIP feeds the login guard key so a hostile client cannot lock an email
// out globally.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	key := email + "|" + clientIP

	if s.guard != nil {
		if ok, retryAfter := s.guard.Allow(key); !ok {
			s.log.WithField("email", email).
				WithField("retry_after", retryAfter.String()).
				Warn("login attempt while locked")
			return user.User{}, "", ErrLoginLocked
		}
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		s.recordFailure(key)
		return user.User{}, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(key)
		return user.User{}, "", ErrInvalidCredentials
	}

	if s.guard != nil {
		s.guard.RecordSuccess(key)
	}

	token, err := s.issueToken(u)
	if err != nil {
		return user.User{}, "", err
	}
	return u, token, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) recordFailure(key string) {
	if s.guard != nil {
		s.guard.RecordFailure(key)
	}
}

func (s *Service) issueToken(u user.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
