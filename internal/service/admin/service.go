package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"log/slog"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/service/credential"
)

var (
	// ErrForbidden is returned when the caller is not an admin.
	ErrForbidden = errors.New("admin role required")
	// ErrRoleNotAllowed rejects roles outside the admin-creatable set.
	ErrRoleNotAllowed = errors.New("only mentor or project_manager accounts can be created by admins")
)

// Service implements administrative user management. Every method takes the
// already-authenticated caller explicitly; there is no ambient identity.
type Service struct {
	credentials credential.Service
	users       repository.UserRepository
	logger      *slog.Logger
}

// New constructs a Service.
func New(credentials credential.Service, users repository.UserRepository, logger *slog.Logger) Service {
	return Service{credentials: credentials, users: users, logger: logger}
}

func requireAdmin(caller *domain.User) error {
	if caller == nil || caller.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// CreateUser registers an account with a role from the managed set.
func (s Service) CreateUser(ctx context.Context, caller *domain.User, email, fullName, password string, role domain.Role) (*domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !slices.Contains(domain.AdminCreatableRoles, role) {
		return nil, ErrRoleNotAllowed
	}
	user, err := s.credentials.Create(ctx, email, fullName, password, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin created user", "admin_id", caller.ID, "user_id", user.ID, "role", role)
	return user, nil
}

// ListUsers returns mentor and project-manager accounts only.
func (s Service) ListUsers(ctx context.Context, caller *domain.User) ([]domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.users.ListUsersByRole(ctx, domain.AdminCreatableRoles)
}

// DeleteUser hard-deletes an account.
func (s Service) DeleteUser(ctx context.Context, caller *domain.User, userID string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("admin deleted user", "admin_id", caller.ID, "user_id", userID)
	return nil
}

// UpdateUser merges a partial update into an account.
func (s Service) UpdateUser(ctx context.Context, caller *domain.User, userID string, update domain.UserUpdate) (*domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if update.Email != nil {
		normalized := credential.NormalizeEmail(*update.Email)
		if normalized == "" {
			return nil, credential.ErrEmailRequired
		}
		update.Email = &normalized
	}
	user, err := s.users.UpdateUser(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin updated user", "admin_id", caller.ID, "user_id", userID)
	return user, nil
}

// ToggleFreeze flips the active flag on an account.
func (s Service) ToggleFreeze(ctx context.Context, caller *domain.User, userID string) (*domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := s.users.SetUserActive(ctx, userID, !user.IsActive)
	if err != nil {
		return nil, err
	}
	state := "unfrozen"
	if !updated.IsActive {
		state = "frozen"
	}
	s.logger.Info(fmt.Sprintf("admin %s user", state), "admin_id", caller.ID, "user_id", userID)
	return updated, nil
}

// Profile returns the caller's own admin identity.
func (s Service) Profile(caller *domain.User) (*domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return caller, nil
}
