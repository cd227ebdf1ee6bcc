package credential

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
)

type stubUserRepository struct {
	byEmail map[string]*domain.User
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{byEmail: make(map[string]*domain.User)}
}

func (s *stubUserRepository) CreateUser(_ context.Context, user *domain.User) error {
	if _, ok := s.byEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	copied := *user
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *stubUserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if user, ok := s.byEmail[email]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) ListUsersByRole(_ context.Context, _ []domain.Role) ([]domain.User, error) {
	return nil, nil
}

func (s *stubUserRepository) UpdateUser(_ context.Context, _ string, _ domain.UserUpdate) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) SetUserActive(_ context.Context, _ string, _ bool) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) DeleteUser(_ context.Context, _ string) error {
	return repository.ErrNotFound
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateNormalizesEmailAndHashesPassword(t *testing.T) {
	repo := newStubUserRepository()
	svc := New(repo, newLogger())

	user, err := svc.Create(context.Background(), "Alice@EXAMPLE.Com", "Alice A", "Testing123!", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "Alice@example.com" {
		t.Fatalf("expected domain lower-cased, got %q", user.Email)
	}
	if user.Role != domain.RoleStudent {
		t.Fatalf("expected default student role, got %q", user.Role)
	}
	if string(user.PasswordHash) == "Testing123!" {
		t.Fatalf("plaintext password stored")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte("Testing123!")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	stored, ok := repo.byEmail["Alice@example.com"]
	if !ok {
		t.Fatalf("user not persisted under normalized email")
	}
	if stored.CreatedAt.IsZero() || stored.CreatedAt.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected created_at: %v", stored.CreatedAt)
	}
}

func TestCreateRequiresFields(t *testing.T) {
	svc := New(newStubUserRepository(), newLogger())

	if _, err := svc.Create(context.Background(), "", "Alice", "pw", ""); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "a@x.com", "  ", "pw", ""); !errors.Is(err, ErrFullNameRequired) {
		t.Fatalf("expected ErrFullNameRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "a@x.com", "Alice", "", ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestCreateSuperuserSetsFlags(t *testing.T) {
	repo := newStubUserRepository()
	svc := New(repo, newLogger())

	user, err := svc.CreateSuperuser(context.Background(), "root@x.com", "Root", "Testing123!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != domain.RoleAdmin || !user.IsStaff || !user.IsSuperuser {
		t.Fatalf("superuser flags not set: %+v", user)
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newStubUserRepository()
	svc := New(repo, newLogger())
	if _, err := svc.Create(context.Background(), "a@x.com", "A", "Testing123!", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), "a@X.COM", "Testing123!")
	if err != nil {
		t.Fatalf("expected authentication success, got %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("unexpected email: %q", user.Email)
	}

	if _, err := svc.Authenticate(context.Background(), "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@x.com", "Testing123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAuthenticateRejectsFrozenAccount(t *testing.T) {
	repo := newStubUserRepository()
	svc := New(repo, newLogger())
	if _, err := svc.Create(context.Background(), "frozen@x.com", "F", "Testing123!", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.byEmail["frozen@x.com"].IsActive = false

	if _, err := svc.Authenticate(context.Background(), "frozen@x.com", "Testing123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for frozen account, got %v", err)
	}
}
