package repository

import (
	"context"
	"time"

	"github.com/prolearn/accounts/internal/domain"
)

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsersByRole(ctx context.Context, roles []domain.Role) ([]domain.User, error)
	UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error)
	SetUserActive(ctx context.Context, id string, active bool) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// OTPRepository persists one-time passwords.
type OTPRepository interface {
	CreateOTP(ctx context.Context, otp *domain.OTP) error
	LatestOTPByEmail(ctx context.Context, email string) (*domain.OTP, error)
	DeleteOTPsByEmail(ctx context.Context, email string) error
	PurgeExpiredOTPs(ctx context.Context, before time.Time) error
}

// RevokedTokenRepository is the token denylist. Entries carry the token's own
// expiry so the set stays bounded.
type RevokedTokenRepository interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpiredTokens(ctx context.Context, before time.Time) error
}
