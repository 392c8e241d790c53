package auth

// Role names the authorization rules depend on.
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleClientAdmin = "CLIENT_ADMIN"
	RoleUser        = "USER"
)

const (
	PermUserRead     = "user_read"
	PermUserWrite    = "user_write"
	PermUserDelete   = "user_delete"
	PermRoleRead     = "role_read"
	PermRoleWrite    = "role_write"
	PermRoleDelete   = "role_delete"
	PermClientRead   = "client_read"
	PermClientWrite  = "client_write"
	PermClientDelete = "client_delete"
)

// RoleAuthorityPrefix marks role authorities; permission authorities are bare names.
const RoleAuthorityPrefix = "ROLE_"

// DefaultClientName is the tenant seeded at bootstrap.
const DefaultClientName = "System"

var BuiltinPermissions = []Permission{
	{Name: PermUserRead, Description: "Read users"},
	{Name: PermUserWrite, Description: "Create and update users"},
	{Name: PermUserDelete, Description: "Delete users"},
	{Name: PermRoleRead, Description: "Read roles"},
	{Name: PermRoleWrite, Description: "Create and update roles"},
	{Name: PermRoleDelete, Description: "Delete roles"},
	{Name: PermClientRead, Description: "Read clients"},
	{Name: PermClientWrite, Description: "Create and update clients"},
	{Name: PermClientDelete, Description: "Delete clients"},
}

// BuiltinRoles maps each seeded role to its permission names.
var BuiltinRoles = map[string][]string{
	RoleSuperAdmin: {
		PermUserRead, PermUserWrite, PermUserDelete,
		PermRoleRead, PermRoleWrite, PermRoleDelete,
		PermClientRead, PermClientWrite, PermClientDelete,
	},
	RoleClientAdmin: {
		PermUserRead, PermUserWrite, PermUserDelete,
		PermRoleRead, PermRoleWrite, PermRoleDelete,
	},
	RoleUser: {PermUserRead},
}
