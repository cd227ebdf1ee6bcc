package domain

import (
	"fmt"
	"time"
)

// Role is the capability tier assigned to an account.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleMentor         Role = "mentor"
	RoleStudent        Role = "student"
)

// roleAliases maps legacy role names still seen in older clients onto the
// canonical set.
var roleAliases = map[string]Role{
	"team_lead":  RoleProjectManager,
	"instructor": RoleMentor,
}

// ParseRole resolves a role string, accepting legacy aliases.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleProjectManager, RoleMentor, RoleStudent:
		return Role(value), nil
	}
	if role, ok := roleAliases[value]; ok {
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

// AdminCreatableRoles lists roles an admin may assign when creating accounts.
var AdminCreatableRoles = []Role{RoleMentor, RoleProjectManager}

// User represents a platform account.
type User struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	PasswordHash []byte
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate carries a partial update; nil fields are left untouched.
type UserUpdate struct {
	Email    *string
	FullName *string
	Role     *Role
	IsActive *bool
}
