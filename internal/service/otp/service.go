package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"log/slog"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/mail"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/service/credential"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrNotFound      = errors.New("otp not found")
	ErrExpired       = errors.New("otp has expired")
	ErrMismatch      = errors.New("invalid otp")
)

const codeLength = 6

// Service runs the OTP send/verify workflow.
type Service struct {
	otps   repository.OTPRepository
	mailer mail.Mailer
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(otps repository.OTPRepository, mailer mail.Mailer, logger *slog.Logger) Service {
	return Service{otps: otps, mailer: mailer, logger: logger, now: time.Now}
}

// generateCode produces a uniformly random 6-digit numeric code.
func generateCode() (string, error) {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Send generates a fresh code, persists it and dispatches it by email. A
// dispatch failure is returned to the caller, never swallowed.
func (s Service) Send(ctx context.Context, email string) error {
	email = credential.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	record := &domain.OTP{Email: email, Code: code, CreatedAt: now}
	if err := s.otps.CreateOTP(ctx, record); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	// Stale rows accumulate otherwise; nobody purges them externally.
	if err := s.otps.PurgeExpiredOTPs(ctx, now.Add(-domain.OTPTTL)); err != nil {
		s.logger.Warn("otp purge failed", "error", err)
	}

	msg := mail.Message{
		To:      email,
		Subject: "Your OTP Code",
		Body:    fmt.Sprintf("Your OTP code is %s. It will expire in 10 minutes.", code),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("dispatch otp email: %w", err)
	}
	s.logger.Info("otp sent", "email", email)
	return nil
}

// Verify checks a code against the most recently issued one for the email.
// Success consumes every outstanding code for that email.
func (s Service) Verify(ctx context.Context, email, code string) error {
	email = credential.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	record, err := s.otps.LatestOTPByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if record.Expired(s.now()) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return ErrMismatch
	}
	if err := s.otps.DeleteOTPsByEmail(ctx, email); err != nil {
		s.logger.Warn("otp consume failed", "email", email, "error", err)
	}
	s.logger.Info("otp verified", "email", email)
	return nil
}
