package httpapi

import "sparehub.org/internal/auth"

// Operation names used by the route table and the authorization policy.
const (
	OpRolesList         = "roles.list"
	OpRolesCreate       = "roles.create"
	OpRolesGet          = "roles.get"
	OpRolesDelete       = "roles.delete"
	OpRolesPermissions  = "roles.permissions"
	OpPermissionsList   = "permissions.list"
	OpPermissionsCreate = "permissions.create"
	OpPermissionsGet    = "permissions.get"
	OpPermissionsDelete = "permissions.delete"
	OpPartsList         = "parts.list"
	OpPartsGet          = "parts.get"
	OpPartsCreate       = "parts.create"
	OpPartsUpdate       = "parts.update"
	OpPartsDelete       = "parts.delete"
	OpSuppliersList     = "suppliers.list"
	OpSuppliersGet      = "suppliers.get"
	OpSuppliersCreate   = "suppliers.create"
	OpSuppliersUpdate   = "suppliers.update"
	OpSuppliersDelete   = "suppliers.delete"
	OpAdminPing         = "admin.ping"
)

// DefaultPolicy maps every protected operation to its requirement.
func DefaultPolicy() auth.Policy {
	manageRoles := auth.RequirePermission(auth.PermManageRoles)
	view := auth.RequirePermission(auth.PermViewSpareParts)
	manageSuppliers := auth.RequirePermission(auth.PermManageSuppliers)
	return auth.Policy{
		OpRolesList:         manageRoles,
		OpRolesCreate:       manageRoles,
		OpRolesGet:          manageRoles,
		OpRolesDelete:       manageRoles,
		OpRolesPermissions:  manageRoles,
		OpPermissionsList:   manageRoles,
		OpPermissionsCreate: manageRoles,
		OpPermissionsGet:    manageRoles,
		OpPermissionsDelete: manageRoles,
		OpPartsList:         view,
		OpPartsGet:          view,
		OpPartsCreate:       auth.RequirePermission(auth.PermAddSpareParts),
		OpPartsUpdate:       auth.RequirePermission(auth.PermEditSpareParts),
		OpPartsDelete:       auth.RequirePermission(auth.PermDeleteSpareParts),
		OpSuppliersList:     view,
		OpSuppliersGet:      view,
		OpSuppliersCreate:   manageSuppliers,
		OpSuppliersUpdate:   manageSuppliers,
		OpSuppliersDelete:   manageSuppliers,
		OpAdminPing:         auth.RequireRole(auth.RoleAdmin),
	}
}
