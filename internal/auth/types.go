package auth

import "time"

// User is an account that authenticates with email and password.
// Every user belongs to exactly one role.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"role_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role groups permissions.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission is a fine-grained capability, e.g. "ViewSpareParts".
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RolePermission links roles to permissions.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// RoleWithPermissions is a role together with the names of the permissions it grants.
type RoleWithPermissions struct {
	Role
	Permissions []string `json:"permissions"`
}

// PasswordResetToken is a single-use credential for resetting a forgotten password.
// Only the SHA-256 digest of the token handed to the user is stored.
type PasswordResetToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// Usable reports whether the token may still authorize a reset at now.
func (t PasswordResetToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}

// Profile is the minimal user view returned by the auth flows.
type Profile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	RoleName    string   `json:"role_name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
