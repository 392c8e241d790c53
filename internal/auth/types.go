package auth

import "time"

// Client is a tenant: the isolation boundary for users and roles.
type Client struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a fine-grained capability from the global catalog.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions. An empty ClientID marks an unscoped role.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ClientID      string    `json:"client_id,omitempty"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Scoped reports whether the role belongs to a tenant.
func (r Role) Scoped() bool { return r.ClientID != "" }

// User is an authenticable principal.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ClientID     string    `json:"client_id,omitempty"`
	RoleIDs      []string  `json:"role_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClientUpdate carries optional client changes.
type ClientUpdate struct {
	Name        *string
	Description *string
}

// PermissionUpdate carries optional permission changes.
type PermissionUpdate struct {
	Name        *string
	Description *string
}

// RoleInput describes a role to create.
type RoleInput struct {
	Name          string
	ClientID      string
	PermissionIDs []string
}

// RoleUpdate carries optional role changes. A nil PermissionIDs keeps the
// current set; an empty non-nil slice clears it.
type RoleUpdate struct {
	Name          *string
	PermissionIDs []string
}

// UserInput describes a user to create. Roles are role names.
type UserInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
	ClientID  string
	Roles     []string
}

// UserUpdate carries optional user changes. A nil Roles keeps the current
// assignment.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Username  *string
	Email     *string
	Password  *string
	ClientID  *string
	Roles     []string
}
