// Package memory holds in-process store implementations used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sparehub.org/internal/auth"
)

var _ auth.Store = (*AuthStore)(nil)

// AuthStore is a mutex-guarded auth.Store.
type AuthStore struct {
	mu     sync.RWMutex
	users  map[string]auth.User
	emails map[string]string
	roles  map[string]auth.Role
	perms  map[string]auth.Permission
	grants map[string]map[string]struct{}
	resets map[string]auth.PasswordResetToken
}

func NewAuthStore() *AuthStore {
	return &AuthStore{
		users:  make(map[string]auth.User),
		emails: make(map[string]string),
		roles:  make(map[string]auth.Role),
		perms:  make(map[string]auth.Permission),
		grants: make(map[string]map[string]struct{}),
		resets: make(map[string]auth.PasswordResetToken),
	}
}

func (s *AuthStore) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[user.Email]; ok {
		return auth.User{}, fmt.Errorf("%w: email already registered", auth.ErrConflict)
	}
	if _, ok := s.roles[user.RoleID]; !ok {
		return auth.User{}, fmt.Errorf("%w: role %s", auth.ErrNotFound, user.RoleID)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	s.emails[user.Email] = user.ID
	return user, nil
}

func (s *AuthStore) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.users[id], nil
}

func (s *AuthStore) UserByID(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

func (s *AuthStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = hash
	s.users[userID] = user
	return nil
}

// AssignRole moves a user to another role. Not part of auth.Store; used to exercise
// token staleness and by local tooling.
func (s *AuthStore) AssignRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	user.RoleID = roleID
	s.users[userID] = user
	return nil
}

func (s *AuthStore) CreateRole(ctx context.Context, name, description string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return auth.Role{}, fmt.Errorf("%w: role %s exists", auth.ErrConflict, name)
		}
	}
	role := auth.Role{ID: uuid.NewString(), Name: name, Description: description}
	s.roles[role.ID] = role
	return role, nil
}

func (s *AuthStore) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return role, nil
}

func (s *AuthStore) RoleByName(ctx context.Context, name string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return auth.Role{}, auth.ErrNotFound
}

func (s *AuthStore) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *AuthStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	for _, u := range s.users {
		if u.RoleID == id {
			return fmt.Errorf("%w: role is assigned to users", auth.ErrReferentialConflict)
		}
	}
	delete(s.roles, id)
	delete(s.grants, id)
	return nil
}

func (s *AuthStore) RolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, auth.ErrNotFound
	}
	out := make([]auth.Permission, 0, len(s.grants[roleID]))
	for id := range s.grants[roleID] {
		out = append(out, s.perms[id])
	}
	sortPermissions(out)
	return out, nil
}

func (s *AuthStore) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, roleID)
	}
	set := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := s.perms[id]; !ok {
			return fmt.Errorf("%w: permission %s", auth.ErrNotFound, id)
		}
		set[id] = struct{}{}
	}
	s.grants[roleID] = set
	return nil
}

func (s *AuthStore) CreatePermission(ctx context.Context, name, description string) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Name == name {
			return auth.Permission{}, fmt.Errorf("%w: permission %s exists", auth.ErrConflict, name)
		}
	}
	perm := auth.Permission{ID: uuid.NewString(), Name: name, Description: description}
	s.perms[perm.ID] = perm
	return perm, nil
}

func (s *AuthStore) PermissionByID(ctx context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perm, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, auth.ErrNotFound
	}
	return perm, nil
}

func (s *AuthStore) PermissionByName(ctx context.Context, name string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.Name == name {
			return p, nil
		}
	}
	return auth.Permission{}, auth.ErrNotFound
}

func (s *AuthStore) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sortPermissions(out)
	return out, nil
}

func (s *AuthStore) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return auth.ErrNotFound
	}
	for _, granted := range s.grants {
		if _, ok := granted[id]; ok {
			return fmt.Errorf("%w: permission is granted to a role", auth.ErrReferentialConflict)
		}
	}
	delete(s.perms, id)
	return nil
}

func (s *AuthStore) CreateResetToken(ctx context.Context, token auth.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[token.UserID]; !ok {
		return auth.ErrNotFound
	}
	if !token.ExpiresAt.After(token.CreatedAt) {
		return fmt.Errorf("%w: reset token must expire after it is created", auth.ErrInvalidInput)
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	s.resets[token.ID] = token
	return nil
}

func (s *AuthStore) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.resets {
		if t.TokenHash != tokenHash || !t.Usable(now) {
			continue
		}
		user, ok := s.users[t.UserID]
		if !ok {
			return "", auth.ErrNotFound
		}
		consumed := now
		t.ConsumedAt = &consumed
		s.resets[id] = t
		user.PasswordHash = passwordHash
		s.users[user.ID] = user
		return user.ID, nil
	}
	return "", auth.ErrNotFound
}

func (s *AuthStore) PurgeResetTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.resets {
		if !t.Usable(now) {
			delete(s.resets, id)
			n++
		}
	}
	return n, nil
}

func sortPermissions(perms []auth.Permission) {
	sort.Slice(perms, func(i, j int) bool {
		return strings.Compare(perms[i].Name, perms[j].Name) < 0
	})
}
