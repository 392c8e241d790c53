package auth

import (
	"sort"
	"strings"
)

// Identity is the authenticated actor a request runs as. It is derived from a
// user and its roles on every request and never persisted.
type Identity struct {
	UserID      string
	Username    string
	ClientID    string
	authorities map[string]struct{}
}

// NewIdentity flattens the user's roles and their permissions into
// authorities. perms must contain every permission referenced by roles;
// unknown ids are ignored.
func NewIdentity(user User, roles []Role, perms []Permission) Identity {
	names := make(map[string]string, len(perms))
	for _, p := range perms {
		names[p.ID] = p.Name
	}
	set := make(map[string]struct{}, len(roles)*2)
	for _, r := range roles {
		set[RoleAuthorityPrefix+r.Name] = struct{}{}
		for _, pid := range r.PermissionIDs {
			if name, ok := names[pid]; ok {
				set[name] = struct{}{}
			}
		}
	}
	return Identity{
		UserID:      user.ID,
		Username:    user.Username,
		ClientID:    user.ClientID,
		authorities: set,
	}
}

// IdentityWithAuthorities builds an identity from pre-computed authority strings.
func IdentityWithAuthorities(userID, username, clientID string, authorities ...string) Identity {
	set := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		if a = strings.TrimSpace(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return Identity{UserID: userID, Username: username, ClientID: clientID, authorities: set}
}

// HasAuthority reports whether the identity carries the exact authority string.
func (id Identity) HasAuthority(authority string) bool {
	_, ok := id.authorities[authority]
	return ok
}

// HasRole reports whether the identity holds the named role.
func (id Identity) HasRole(name string) bool {
	return id.HasAuthority(RoleAuthorityPrefix + name)
}

// HasAnyRole reports whether the identity holds at least one of the named roles.
func (id Identity) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if id.HasRole(n) {
			return true
		}
	}
	return false
}

func (id Identity) IsSuperAdmin() bool { return id.HasRole(RoleSuperAdmin) }

// Authorities returns all authority strings in sorted order.
func (id Identity) Authorities() []string {
	out := make([]string, 0, len(id.authorities))
	for a := range id.authorities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Roles returns the role names without the authority prefix.
func (id Identity) Roles() []string {
	var out []string
	for _, a := range id.Authorities() {
		if name, ok := strings.CutPrefix(a, RoleAuthorityPrefix); ok {
			out = append(out, name)
		}
	}
	return out
}

// Permissions returns the permission authorities.
func (id Identity) Permissions() []string {
	var out []string
	for _, a := range id.Authorities() {
		if !strings.HasPrefix(a, RoleAuthorityPrefix) {
			out = append(out, a)
		}
	}
	return out
}
