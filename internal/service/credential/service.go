package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
)

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrFullNameRequired   = errors.New("full name is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service creates accounts and verifies credentials.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// NormalizeEmail lower-cases the domain part of an address, leaving the local
// part as supplied.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// Create registers an account with a salted bcrypt password hash. The
// plaintext password is never persisted.
func (s Service) Create(ctx context.Context, email, fullName, password string, role domain.Role) (*domain.User, error) {
	return s.create(ctx, email, fullName, password, role, false, false)
}

// CreateSuperuser registers an admin account with staff and superuser flags.
func (s Service) CreateSuperuser(ctx context.Context, email, fullName, password string) (*domain.User, error) {
	return s.create(ctx, email, fullName, password, domain.RoleAdmin, true, true)
}

func (s Service) create(ctx context.Context, email, fullName, password string, role domain.Role, staff, superuser bool) (*domain.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, ErrFullNameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if role == "" {
		role = domain.RoleStudent
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      staff,
		IsSuperuser:  superuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Authenticate looks up the account by normalized email and verifies the
// password. Frozen accounts fail the same way unknown ones do.
func (s Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
