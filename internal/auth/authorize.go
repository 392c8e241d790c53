package auth

import (
	"fmt"
	"strings"
)

// Requirement is a capability an operation demands of its actor.
type Requirement struct {
	anyOf []string
}

// RequireRole demands a single role.
func RequireRole(name string) Requirement {
	return Requirement{anyOf: []string{name}}
}

// RequireAnyRole demands at least one of the given roles.
func RequireAnyRole(names ...string) Requirement {
	return Requirement{anyOf: append([]string(nil), names...)}
}

func (r Requirement) String() string {
	if len(r.anyOf) == 1 {
		return "hasRole(" + r.anyOf[0] + ")"
	}
	return "hasAnyRole(" + strings.Join(r.anyOf, ",") + ")"
}

// Authorize checks the identity against req. An empty requirement only
// demands an authenticated identity.
func Authorize(id Identity, req Requirement) error {
	if id.Username == "" {
		return fmt.Errorf("%w: unauthenticated", ErrForbidden)
	}
	if len(req.anyOf) == 0 || id.HasAnyRole(req.anyOf...) {
		return nil
	}
	return fmt.Errorf("%w: %s required", ErrForbidden, req)
}

// InScope reports whether the identity may act on an entity owned by
// clientID. SUPER_ADMIN bypasses scoping; everyone else must own a tenant and
// it must match. Unscoped entities are only in scope for SUPER_ADMIN.
func InScope(id Identity, clientID string) bool {
	if id.IsSuperAdmin() {
		return true
	}
	return id.ClientID != "" && id.ClientID == clientID
}
