package auth

const (
	PermViewSpareParts   = "ViewSpareParts"
	PermAddSpareParts    = "AddSpareParts"
	PermEditSpareParts   = "EditSpareParts"
	PermDeleteSpareParts = "DeleteSpareParts"
	PermManageSuppliers  = "ManageSuppliers"
	PermManageRoles      = "ManageRoles"
)

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

var BuiltinPermissions = []Permission{
	{Name: PermViewSpareParts, Description: "List and read spare parts and suppliers"},
	{Name: PermAddSpareParts, Description: "Create spare parts"},
	{Name: PermEditSpareParts, Description: "Update spare parts"},
	{Name: PermDeleteSpareParts, Description: "Delete spare parts"},
	{Name: PermManageSuppliers, Description: "Create, update and delete suppliers"},
	{Name: PermManageRoles, Description: "Manage roles, permissions and their assignments"},
}

// BuiltinRoles maps each seeded role to the permissions it is created with.
var BuiltinRoles = map[string][]string{
	RoleAdmin: {
		PermViewSpareParts,
		PermAddSpareParts,
		PermEditSpareParts,
		PermDeleteSpareParts,
		PermManageSuppliers,
		PermManageRoles,
	},
	RoleUser: {PermViewSpareParts},
}

var builtinRoleDescriptions = map[string]string{
	RoleAdmin: "Full access to inventory and access control",
	RoleUser:  "Default role for registered users",
}
