package auth

import "context"

// Store is the credential store and persistence layer the auth core runs on.
// Implementations assign ids on create and must enforce uniqueness of client
// names, permission names, role names per scope and user usernames/emails,
// reporting violations as *ConflictError. Lookups of missing rows return an
// error matching ErrNotFound.
type Store interface {
	ClientStore
	PermissionStore
	RoleStore
	UserStore
}

// ClientStore manages tenants.
type ClientStore interface {
	CreateClient(ctx context.Context, c Client) (Client, error)
	GetClient(ctx context.Context, id string) (Client, error)
	FindClientByName(ctx context.Context, name string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, c Client) (Client, error)
	// DeleteClient fails with ErrPrecondition while users or roles reference the client.
	DeleteClient(ctx context.Context, id string) error
	ClientUsage(ctx context.Context, id string) (Usage, error)
}

// PermissionStore manages the global permission catalog.
type PermissionStore interface {
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	FindPermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpdatePermission(ctx context.Context, p Permission) (Permission, error)
	DeletePermission(ctx context.Context, id string) error
}

// RoleStore manages roles and their permission sets.
type RoleStore interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	// ListRolesByClient lists roles owned by clientID; "" lists unscoped roles.
	ListRolesByClient(ctx context.Context, clientID string) ([]Role, error)
	// FindRolesByName returns every role with the name across all scopes.
	FindRolesByName(ctx context.Context, name string) ([]Role, error)
	UpdateRole(ctx context.Context, r Role) (Role, error)
	DeleteRole(ctx context.Context, id string) error
}

// UserStore manages users and their role assignments.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByClient(ctx context.Context, clientID string) ([]User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Usage counts the entities a client owns.
type Usage struct {
	Users int `json:"user_count"`
	Roles int `json:"role_count"`
}

func (u Usage) Empty() bool { return u.Users == 0 && u.Roles == 0 }
