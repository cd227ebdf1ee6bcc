package otp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/mail"
	"github.com/prolearn/accounts/internal/repository"
)

type stubOTPRepository struct {
	rows   []domain.OTP
	nextID int64
}

func (s *stubOTPRepository) CreateOTP(_ context.Context, otp *domain.OTP) error {
	s.nextID++
	otp.ID = s.nextID
	s.rows = append(s.rows, *otp)
	return nil
}

func (s *stubOTPRepository) LatestOTPByEmail(_ context.Context, email string) (*domain.OTP, error) {
	var latest *domain.OTP
	for i := range s.rows {
		row := &s.rows[i]
		if row.Email != email {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) ||
			(row.CreatedAt.Equal(latest.CreatedAt) && row.ID > latest.ID) {
			latest = row
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *stubOTPRepository) DeleteOTPsByEmail(_ context.Context, email string) error {
	kept := s.rows[:0]
	for _, row := range s.rows {
		if row.Email != email {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	return nil
}

func (s *stubOTPRepository) PurgeExpiredOTPs(_ context.Context, before time.Time) error {
	kept := s.rows[:0]
	for _, row := range s.rows {
		if !row.CreatedAt.Before(before) {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	return nil
}

type stubMailer struct {
	sent []mail.Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendPersistsAndDispatchesSixDigitCode(t *testing.T) {
	repo := &stubOTPRepository{}
	mailer := &stubMailer{}
	svc := New(repo, mailer, newLogger())

	if err := svc.Send(context.Background(), "b@x.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected one persisted row, got %d", len(repo.rows))
	}
	code := repo.rows[0].Code
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-numeric code %q", code)
		}
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "b@x.com" || msg.Subject != "Your OTP Code" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.Body, code) {
		t.Fatalf("email body %q does not contain code %q", msg.Body, code)
	}
}

func TestSendSurfacesDispatchFailure(t *testing.T) {
	repo := &stubOTPRepository{}
	mailer := &stubMailer{err: errors.New("smtp down")}
	svc := New(repo, mailer, newLogger())

	err := svc.Send(context.Background(), "b@x.com")
	if err == nil {
		t.Fatalf("expected dispatch failure to surface")
	}
	if !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected wrapped dispatch error, got %v", err)
	}
}

func TestVerifyOnlyAcceptsMostRecentCode(t *testing.T) {
	repo := &stubOTPRepository{}
	svc := New(repo, &stubMailer{}, newLogger())
	base := time.Now().UTC()
	repo.rows = []domain.OTP{
		{ID: 1, Email: "b@x.com", Code: "111111", CreatedAt: base.Add(-2 * time.Minute)},
		{ID: 2, Email: "b@x.com", Code: "222222", CreatedAt: base.Add(-time.Minute)},
	}

	if err := svc.Verify(context.Background(), "b@x.com", "111111"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch for superseded code, got %v", err)
	}
	if err := svc.Verify(context.Background(), "b@x.com", "222222"); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
	if len(repo.rows) != 0 {
		t.Fatalf("expected rows consumed on success, %d remain", len(repo.rows))
	}
}

func TestVerifyExpired(t *testing.T) {
	repo := &stubOTPRepository{}
	svc := New(repo, &stubMailer{}, newLogger())
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	repo.rows = []domain.OTP{
		{ID: 1, Email: "b@x.com", Code: "333333", CreatedAt: now.Add(-11 * time.Minute)},
	}

	if err := svc.Verify(context.Background(), "b@x.com", "333333"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired even with correct code, got %v", err)
	}
}

func TestVerifyNotFound(t *testing.T) {
	svc := New(&stubOTPRepository{}, &stubMailer{}, newLogger())
	if err := svc.Verify(context.Background(), "nobody@x.com", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
