package auth

import (
	"errors"
	"testing"
)

func TestIdentityFlattensRolesAndPermissions(t *testing.T) {
	perms := []Permission{{ID: "p1", Name: PermUserRead}, {ID: "p2", Name: PermUserWrite}, {ID: "p3", Name: PermRoleRead}}
	roles := []Role{
		{ID: "r1", Name: "MANAGER", ClientID: "acme", PermissionIDs: []string{"p1", "p2"}},
		{ID: "r2", Name: "AUDITOR", ClientID: "acme", PermissionIDs: []string{"p1", "missing"}},
	}
	id := NewIdentity(User{ID: "u1", Username: "bob", ClientID: "acme"}, roles, perms)

	want := []string{"ROLE_AUDITOR", "ROLE_MANAGER", PermUserRead, PermUserWrite}
	got := id.Authorities()
	if len(got) != len(want) {
		t.Fatalf("authorities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("authorities = %v, want %v", got, want)
		}
	}
	if !id.HasRole("MANAGER") || id.HasRole("ROLE_MANAGER") {
		t.Fatalf("role lookup must go through the ROLE_ prefix exactly once")
	}
	if id.HasAuthority(PermRoleRead) {
		t.Fatalf("unexpected permission %s", PermRoleRead)
	}
}

func TestSuperAdminCheckUsesRoleAuthority(t *testing.T) {
	bare := IdentityWithAuthorities("u1", "root", "", "SUPER_ADMIN")
	if bare.IsSuperAdmin() {
		t.Fatalf("bare SUPER_ADMIN string must not grant the bypass")
	}
	prefixed := IdentityWithAuthorities("u1", "root", "", "ROLE_SUPER_ADMIN")
	if !prefixed.IsSuperAdmin() {
		t.Fatalf("ROLE_SUPER_ADMIN must grant the bypass")
	}
}

func TestAuthorize(t *testing.T) {
	admin := IdentityWithAuthorities("u1", "alice", "t1", "ROLE_CLIENT_ADMIN")
	user := IdentityWithAuthorities("u2", "carol", "t1", "ROLE_USER")

	if err := Authorize(admin, RequireAnyRole(RoleSuperAdmin, RoleClientAdmin)); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
	if err := Authorize(user, RequireAnyRole(RoleSuperAdmin, RoleClientAdmin)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user allowed: %v", err)
	}
	if err := Authorize(admin, RequireRole(RoleSuperAdmin)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client admin passed super admin check: %v", err)
	}
	if err := Authorize(user, Requirement{}); err != nil {
		t.Fatalf("authenticated identity denied: %v", err)
	}
	if err := Authorize(Identity{}, Requirement{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous identity allowed: %v", err)
	}
}

func TestInScope(t *testing.T) {
	super := IdentityWithAuthorities("u0", "root", "", "ROLE_SUPER_ADMIN")
	scoped := IdentityWithAuthorities("u1", "alice", "t1", "ROLE_CLIENT_ADMIN")
	orphan := IdentityWithAuthorities("u2", "ghost", "", "ROLE_CLIENT_ADMIN")

	for _, target := range []string{"", "t1", "t2"} {
		if !InScope(super, target) {
			t.Fatalf("super admin denied for %q", target)
		}
		if InScope(orphan, target) {
			t.Fatalf("identity without tenant passed for %q", target)
		}
	}
	if !InScope(scoped, "t1") {
		t.Fatalf("same tenant denied")
	}
	if InScope(scoped, "t2") || InScope(scoped, "") {
		t.Fatalf("foreign or unscoped target allowed")
	}
}
