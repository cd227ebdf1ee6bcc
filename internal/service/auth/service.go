package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/prolearn/accounts/internal/config"
	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/service/credential"
	"github.com/prolearn/accounts/internal/token"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrNotAdmin       = errors.New("invalid admin credentials")
	ErrUserFrozen     = errors.New("account is frozen")
	ErrRefreshMissing = errors.New("refresh token is required")
)

// Service handles session lifecycle: login, token validation, revocation.
type Service struct {
	credentials credential.Service
	users       repository.UserRepository
	revoked     repository.RevokedTokenRepository
	logger      *slog.Logger
	cfg         config.APIConfig
}

// New constructs a Service.
func New(credentials credential.Service, users repository.UserRepository, revoked repository.RevokedTokenRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{credentials: credentials, users: users, revoked: revoked, logger: logger, cfg: cfg}
}

// Login authenticates credentials and issues a token pair.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, token.Pair, error) {
	user, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return nil, token.Pair{}, err
	}
	pair, err := token.GeneratePair(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, token.Pair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// AdminLogin is Login restricted to admin accounts.
func (s Service) AdminLogin(ctx context.Context, email, password string) (*domain.User, token.Pair, error) {
	user, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		return nil, token.Pair{}, ErrNotAdmin
	}
	if user.Role != domain.RoleAdmin {
		return nil, token.Pair{}, ErrNotAdmin
	}
	pair, err := token.GeneratePair(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, token.Pair{}, err
	}
	s.logger.Info("admin logged in", "user_id", user.ID)
	return user, pair, nil
}

// Authorize validates a bearer access token and returns the caller. Revoked
// and frozen identities are rejected.
func (s Service) Authorize(ctx context.Context, raw string) (*domain.User, *token.Claims, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil, ErrInvalidToken
	}
	claims, err := token.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	if claims.TokenType != token.TypeAccess {
		return nil, nil, token.ErrWrongTokenType
	}
	revoked, err := s.revoked.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserFrozen
	}
	return user, claims, nil
}

// Logout revokes a refresh token by putting its JTI on the denylist until the
// token would have expired anyway.
func (s Service) Logout(ctx context.Context, refreshToken string) error {
	trimmed := strings.TrimSpace(refreshToken)
	if trimmed == "" {
		return ErrRefreshMissing
	}
	claims, err := token.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.TokenType != token.TypeRefresh {
		return token.ErrWrongTokenType
	}
	revoked, err := s.revoked.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenRevoked
	}
	expiresAt := time.Now().Add(s.cfg.RefreshTokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revoked.RevokeToken(ctx, claims.ID, expiresAt); err != nil {
		return err
	}
	if err := s.revoked.PurgeExpiredTokens(ctx, time.Now()); err != nil {
		s.logger.Warn("denylist purge failed", "error", err)
	}
	s.logger.Info("refresh token revoked", "user_id", claims.UserID, "jti", claims.ID)
	return nil
}
