package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxRoleNameLength       = 50
	maxPermissionNameLength = 100
	maxDescriptionLength    = 250
)

// RBACService manages roles, permissions and the grants between them.
type RBACService struct {
	store Store
}

func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store}, nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (RoleWithPermissions, error) {
	name, description, err := normalizeNamed("role", name, description, maxRoleNameLength)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	role, err := s.store.CreateRole(ctx, name, description)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: role, Permissions: []string{}}, nil
}

func (s *RBACService) ListRoles(ctx context.Context) ([]RoleWithPermissions, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		withPerms, err := s.withPermissions(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, withPerms)
	}
	return out, nil
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (RoleWithPermissions, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return RoleWithPermissions{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.RoleByID(ctx, roleID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return s.withPermissions(ctx, role)
}

// DeleteRole removes a role that no user holds.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

// SetRolePermissions replaces the role's permission set. Either every id is granted or none.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) (RoleWithPermissions, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return RoleWithPermissions{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, dedupeStrings(permissionIDs)); err != nil {
		return RoleWithPermissions{}, err
	}
	return s.GetRole(ctx, roleID)
}

func (s *RBACService) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	name, description, err := normalizeNamed("permission", name, description, maxPermissionNameLength)
	if err != nil {
		return Permission{}, err
	}
	return s.store.CreatePermission(ctx, name, description)
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

func (s *RBACService) GetPermission(ctx context.Context, permissionID string) (Permission, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return Permission{}, fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.PermissionByID(ctx, permissionID)
}

// DeletePermission removes a permission that no role grants.
func (s *RBACService) DeletePermission(ctx context.Context, permissionID string) error {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.DeletePermission(ctx, permissionID)
}

// EnsureBuiltins creates the builtin permissions and roles that are missing.
// Existing roles keep whatever grants they have.
func (s *RBACService) EnsureBuiltins(ctx context.Context) error {
	ids := make(map[string]string, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		perm, err := s.store.PermissionByName(ctx, p.Name)
		if errors.Is(err, ErrNotFound) {
			perm, err = s.store.CreatePermission(ctx, p.Name, p.Description)
			if errors.Is(err, ErrConflict) {
				perm, err = s.store.PermissionByName(ctx, p.Name)
			}
		}
		if err != nil {
			return fmt.Errorf("ensure permission %s: %w", p.Name, err)
		}
		ids[p.Name] = perm.ID
	}

	for _, name := range []string{RoleAdmin, RoleUser} {
		_, err := s.store.RoleByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
		role, err := s.store.CreateRole(ctx, name, builtinRoleDescriptions[name])
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
		grants := make([]string, 0, len(BuiltinRoles[name]))
		for _, perm := range BuiltinRoles[name] {
			grants = append(grants, ids[perm])
		}
		if err := s.store.SetRolePermissions(ctx, role.ID, grants); err != nil {
			return fmt.Errorf("grant role %s: %w", name, err)
		}
	}
	return nil
}

func (s *RBACService) withPermissions(ctx context.Context, role Role) (RoleWithPermissions, error) {
	perms, err := s.store.RolePermissions(ctx, role.ID)
	if err != nil {
		return RoleWithPermissions{}, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return RoleWithPermissions{Role: role, Permissions: names}, nil
}

func normalizeNamed(kind, name, description string, maxName int) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: %s name is required", ErrInvalidInput, kind)
	}
	if utf8.RuneCountInString(name) > maxName {
		return "", "", fmt.Errorf("%w: %s name must be at most %d characters", ErrInvalidInput, kind, maxName)
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", "", fmt.Errorf("%w: %s description must be at most %d characters", ErrInvalidInput, kind, maxDescriptionLength)
	}
	return name, description, nil
}
