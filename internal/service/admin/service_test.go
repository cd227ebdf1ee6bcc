package admin

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/service/credential"
)

type fakeUserRepository struct {
	users        map[string]*domain.User
	listedRoles  []domain.Role
	deletedIDs   []string
	activeStates map[string]bool
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{
		users:        make(map[string]*domain.User),
		activeStates: make(map[string]bool),
	}
}

func (f *fakeUserRepository) CreateUser(_ context.Context, user *domain.User) error {
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := f.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) ListUsersByRole(_ context.Context, roles []domain.Role) ([]domain.User, error) {
	f.listedRoles = roles
	var out []domain.User
	for _, user := range f.users {
		for _, role := range roles {
			if user.Role == role {
				out = append(out, *user)
			}
		}
	}
	return out, nil
}

func (f *fakeUserRepository) UpdateUser(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.FullName != nil {
		user.FullName = *update.FullName
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	user.UpdatedAt = time.Now().UTC()
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepository) SetUserActive(_ context.Context, id string, active bool) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user.IsActive = active
	f.activeStates[id] = active
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepository) DeleteUser(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(repo *fakeUserRepository) Service {
	return New(credential.New(repo, newLogger()), repo, newLogger())
}

func adminCaller() *domain.User {
	return &domain.User{ID: "admin-1", Email: "root@x.com", Role: domain.RoleAdmin, IsActive: true}
}

func studentCaller() *domain.User {
	return &domain.User{ID: "user-1", Email: "a@x.com", Role: domain.RoleStudent, IsActive: true}
}

func TestNonAdminCallersAreRejected(t *testing.T) {
	repo := newFakeUserRepository()
	svc := newService(repo)
	caller := studentCaller()
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, caller, "m@x.com", "M", "Testing123!", domain.RoleMentor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("CreateUser: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ListUsers(ctx, caller); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ListUsers: expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteUser(ctx, caller, "any"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("DeleteUser: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.UpdateUser(ctx, caller, "any", domain.UserUpdate{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("UpdateUser: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ToggleFreeze(ctx, caller, "any"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ToggleFreeze: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Profile(caller); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Profile: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Profile(nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Profile(nil): expected ErrForbidden, got %v", err)
	}
}

func TestCreateUserEnforcesRoleAllowlist(t *testing.T) {
	repo := newFakeUserRepository()
	svc := newService(repo)
	ctx := context.Background()

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleStudent} {
		if _, err := svc.CreateUser(ctx, adminCaller(), "x@x.com", "X", "Testing123!", role); !errors.Is(err, ErrRoleNotAllowed) {
			t.Fatalf("role %q: expected ErrRoleNotAllowed, got %v", role, err)
		}
	}

	user, err := svc.CreateUser(ctx, adminCaller(), "m@x.com", "Mentor One", "Testing123!", domain.RoleMentor)
	if err != nil {
		t.Fatalf("create mentor: %v", err)
	}
	if user.Role != domain.RoleMentor || !user.IsActive {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestListUsersFiltersToManagedRoles(t *testing.T) {
	repo := newFakeUserRepository()
	repo.users["m1"] = &domain.User{ID: "m1", Email: "m@x.com", Role: domain.RoleMentor}
	repo.users["p1"] = &domain.User{ID: "p1", Email: "p@x.com", Role: domain.RoleProjectManager}
	repo.users["s1"] = &domain.User{ID: "s1", Email: "s@x.com", Role: domain.RoleStudent}
	svc := newService(repo)

	users, err := svc.ListUsers(context.Background(), adminCaller())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	want := []domain.Role{domain.RoleMentor, domain.RoleProjectManager}
	if len(repo.listedRoles) != len(want) || repo.listedRoles[0] != want[0] || repo.listedRoles[1] != want[1] {
		t.Fatalf("unexpected role filter: %v", repo.listedRoles)
	}
}

func TestDeleteUserReportsMissing(t *testing.T) {
	repo := newFakeUserRepository()
	repo.users["m1"] = &domain.User{ID: "m1", Email: "m@x.com", Role: domain.RoleMentor}
	svc := newService(repo)
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, adminCaller(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteUser(ctx, adminCaller(), "m1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserNormalizesEmail(t *testing.T) {
	repo := newFakeUserRepository()
	repo.users["m1"] = &domain.User{ID: "m1", Email: "m@x.com", FullName: "Old", Role: domain.RoleMentor}
	svc := newService(repo)

	email := "New@EXAMPLE.Com"
	name := "New Name"
	user, err := svc.UpdateUser(context.Background(), adminCaller(), "m1", domain.UserUpdate{Email: &email, FullName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.Email != "New@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.FullName != "New Name" {
		t.Fatalf("unexpected full name: %q", user.FullName)
	}
}

func TestToggleFreezeFlipsActiveFlag(t *testing.T) {
	repo := newFakeUserRepository()
	repo.users["m1"] = &domain.User{ID: "m1", Email: "m@x.com", Role: domain.RoleMentor, IsActive: true}
	svc := newService(repo)
	ctx := context.Background()

	frozen, err := svc.ToggleFreeze(ctx, adminCaller(), "m1")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen.IsActive {
		t.Fatalf("expected user frozen")
	}
	thawed, err := svc.ToggleFreeze(ctx, adminCaller(), "m1")
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if !thawed.IsActive {
		t.Fatalf("expected user unfrozen")
	}
	if _, err := svc.ToggleFreeze(ctx, adminCaller(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
