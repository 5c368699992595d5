package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/store/memory"
)

func permissionIDs(t *testing.T, store *memory.AuthStore, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, n := range names {
		p, err := store.PermissionByName(context.Background(), n)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

func TestEnsureBuiltinsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rbac.EnsureBuiltins(ctx))

	roles, err := f.rbac.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, auth.RoleAdmin, roles[0].Name)
	assert.ElementsMatch(t, auth.BuiltinRoles[auth.RoleAdmin], roles[0].Permissions)
	assert.Equal(t, []string{auth.PermViewSpareParts}, roles[1].Permissions)

	perms, err := f.rbac.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(auth.BuiltinPermissions))
}

func TestEnsureBuiltinsKeepsCustomGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userRole := f.roleID(t, auth.RoleUser)
	_, err := f.rbac.SetRolePermissions(ctx, userRole, permissionIDs(t, f.store, auth.PermViewSpareParts, auth.PermAddSpareParts))
	require.NoError(t, err)

	require.NoError(t, f.rbac.EnsureBuiltins(ctx))
	role, err := f.rbac.GetRole(ctx, userRole)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{auth.PermViewSpareParts, auth.PermAddSpareParts}, role.Permissions)
}

func TestCreateRoleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rbac.CreateRole(ctx, "  ", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.rbac.CreateRole(ctx, strings.Repeat("r", 51), "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.rbac.CreateRole(ctx, auth.RoleAdmin, "")
	assert.ErrorIs(t, err, auth.ErrConflict)

	role, err := f.rbac.CreateRole(ctx, " Manager ", "Stock managers")
	require.NoError(t, err)
	assert.Equal(t, "Manager", role.Name)
	assert.Empty(t, role.Permissions)

	_, err = f.rbac.CreatePermission(ctx, strings.Repeat("p", 101), "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.rbac.CreatePermission(ctx, auth.PermManageRoles, "")
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestSetRolePermissionsIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userRole := f.roleID(t, auth.RoleUser)

	ids := append(permissionIDs(t, f.store, auth.PermAddSpareParts), "missing-permission")
	_, err := f.rbac.SetRolePermissions(ctx, userRole, ids)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	role, err := f.rbac.GetRole(ctx, userRole)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.PermViewSpareParts}, role.Permissions)

	_, err = f.rbac.SetRolePermissions(ctx, "missing-role", nil)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	role, err = f.rbac.SetRolePermissions(ctx, userRole, permissionIDs(t, f.store, auth.PermAddSpareParts, auth.PermAddSpareParts))
	require.NoError(t, err)
	assert.Equal(t, []string{auth.PermAddSpareParts}, role.Permissions)
}

func TestDeleteRoleReferentialGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.rbac.DeleteRole(ctx, f.roleID(t, auth.RoleUser)), auth.ErrReferentialConflict)

	role, err := f.rbac.CreateRole(ctx, "Temp", "")
	require.NoError(t, err)
	perm, err := f.rbac.CreatePermission(ctx, "ExportReports", "")
	require.NoError(t, err)
	_, err = f.rbac.SetRolePermissions(ctx, role.ID, []string{perm.ID})
	require.NoError(t, err)

	require.NoError(t, f.rbac.DeleteRole(ctx, role.ID))
	_, err = f.rbac.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.NoError(t, f.rbac.DeletePermission(ctx, perm.ID), "grants are removed with the role")
	assert.ErrorIs(t, f.rbac.DeleteRole(ctx, role.ID), auth.ErrNotFound)
}

func TestDeletePermissionReferentialGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := permissionIDs(t, f.store, auth.PermViewSpareParts)[0]

	assert.ErrorIs(t, f.rbac.DeletePermission(ctx, view), auth.ErrReferentialConflict)

	for _, name := range []string{auth.RoleAdmin, auth.RoleUser} {
		_, err := f.rbac.SetRolePermissions(ctx, f.roleID(t, name), nil)
		require.NoError(t, err)
	}
	require.NoError(t, f.rbac.DeletePermission(ctx, view))
	_, err := f.rbac.GetPermission(ctx, view)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
