package auth

import (
	"context"
	"time"
)

// Store persists users, roles, permissions and reset tokens. Implementations enforce
// email/name uniqueness (ErrConflict) and referential integrity (ErrNotFound,
// ErrReferentialConflict).
type Store interface {
	CreateUser(ctx context.Context, user User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	CreateRole(ctx context.Context, name, description string) (Role, error)
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// DeleteRole removes the role and its grants; ErrReferentialConflict while users hold it.
	DeleteRole(ctx context.Context, id string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	// SetRolePermissions replaces the role's grants with permissionIDs atomically.
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error

	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	PermissionByID(ctx context.Context, id string) (Permission, error)
	PermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	// DeletePermission fails with ErrReferentialConflict while any role grants it.
	DeletePermission(ctx context.Context, id string) error

	CreateResetToken(ctx context.Context, token PasswordResetToken) error
	// ConsumeResetToken marks the usable token with tokenHash consumed and stores the new
	// password hash for its user in one step. ErrNotFound when no usable token matches.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	// PurgeResetTokens removes tokens that expired or were consumed before now.
	PurgeResetTokens(ctx context.Context, now time.Time) (int64, error)
}
