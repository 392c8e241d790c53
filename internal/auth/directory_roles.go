package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ListRoles returns every role to a super admin and the actor's own tenant
// roles to anyone else.
func (d *Directory) ListRoles(ctx context.Context, actor Identity) ([]Role, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return nil, err
	}
	if actor.IsSuperAdmin() {
		return d.store.ListRoles(ctx)
	}
	if actor.ClientID == "" {
		return nil, fmt.Errorf("%w: no tenant", ErrForbidden)
	}
	return d.store.ListRolesByClient(ctx, actor.ClientID)
}

// GetRole reports roles outside the actor's scope as not found.
func (d *Directory) GetRole(ctx context.Context, actor Identity, id string) (Role, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return Role{}, err
	}
	r, err := d.role(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !InScope(actor, r.ClientID) {
		return Role{}, missingRef("role", id)
	}
	return r, nil
}

// CreateRole creates a role. Super admins choose the scope, other admins
// always create in their own tenant.
func (d *Directory) CreateRole(ctx context.Context, actor Identity, in RoleInput) (Role, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return Role{}, err
	}
	name := strings.TrimSpace(in.Name)
	if err := checkLength("role name", name, 3, 50); err != nil {
		return Role{}, err
	}

	clientID := strings.TrimSpace(in.ClientID)
	if actor.IsSuperAdmin() {
		if clientID != "" {
			if _, err := d.client(ctx, clientID); err != nil {
				return Role{}, err
			}
		}
	} else {
		if actor.ClientID == "" {
			return Role{}, fmt.Errorf("%w: no tenant", ErrForbidden)
		}
		clientID = actor.ClientID
	}

	if err := d.roleNameFree(ctx, name, clientID, ""); err != nil {
		return Role{}, err
	}
	perms, err := d.resolvePermissions(ctx, in.PermissionIDs)
	if err != nil {
		return Role{}, err
	}
	return d.store.CreateRole(ctx, Role{Name: name, ClientID: clientID, PermissionIDs: perms})
}

// UpdateRole renames a role or replaces its permission set. The role keeps its scope.
func (d *Directory) UpdateRole(ctx context.Context, actor Identity, id string, upd RoleUpdate) (Role, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return Role{}, err
	}
	r, err := d.role(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !InScope(actor, r.ClientID) {
		return Role{}, fmt.Errorf("%w: role %s is outside your tenant", ErrForbidden, id)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := checkLength("role name", name, 3, 50); err != nil {
			return Role{}, err
		}
		if name != r.Name {
			if err := d.roleNameFree(ctx, name, r.ClientID, r.ID); err != nil {
				return Role{}, err
			}
		}
		r.Name = name
	}
	if upd.PermissionIDs != nil {
		perms, err := d.resolvePermissions(ctx, upd.PermissionIDs)
		if err != nil {
			return Role{}, err
		}
		r.PermissionIDs = perms
	}
	return d.store.UpdateRole(ctx, r)
}

func (d *Directory) DeleteRole(ctx context.Context, actor Identity, id string) error {
	if err := Authorize(actor, requireAdmin); err != nil {
		return err
	}
	r, err := d.role(ctx, id)
	if err != nil {
		return err
	}
	if !InScope(actor, r.ClientID) {
		return fmt.Errorf("%w: role %s is outside your tenant", ErrForbidden, id)
	}
	return d.store.DeleteRole(ctx, r.ID)
}

func (d *Directory) role(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	r, err := d.store.GetRole(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Role{}, missingRef("role", id)
	}
	return r, err
}

// roleNameFree enforces per-scope role name uniqueness. An unscoped name must
// not be used by any role; a scoped name must be free within its tenant and
// must not shadow an unscoped role.
func (d *Directory) roleNameFree(ctx context.Context, name, clientID, selfID string) error {
	existing, err := d.store.FindRolesByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	for _, r := range existing {
		if r.ID == selfID {
			continue
		}
		if clientID == "" || r.ClientID == clientID || r.ClientID == "" {
			return conflict("name", name)
		}
	}
	return nil
}

// resolveRoleNames maps role names to ids visible to the actor when assigning
// roles to a user owned by targetClient.
func (d *Directory) resolveRoleNames(ctx context.Context, actor Identity, targetClient string, names []string) ([]string, error) {
	names = dedupeStrings(names)
	ids := make([]string, 0, len(names))
	for _, name := range names {
		var (
			r   Role
			err error
		)
		if actor.IsSuperAdmin() {
			r, err = d.resolveGlobalRole(ctx, name, targetClient)
		} else {
			r, err = d.resolveTenantRole(ctx, name, actor.ClientID)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, r.ID)
	}
	return dedupeStrings(ids), nil
}

func (d *Directory) resolveTenantRole(ctx context.Context, name, clientID string) (Role, error) {
	if clientID == "" {
		return Role{}, missingRef("role", name)
	}
	candidates, err := d.store.FindRolesByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	for _, r := range candidates {
		if r.ClientID == clientID {
			return r, nil
		}
	}
	return Role{}, missingRef("role", name)
}

// resolveGlobalRole prefers a role in targetClient, then an unscoped role,
// then the only role anywhere with that name.
func (d *Directory) resolveGlobalRole(ctx context.Context, name, targetClient string) (Role, error) {
	candidates, err := d.store.FindRolesByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	if targetClient != "" {
		for _, r := range candidates {
			if r.ClientID == targetClient {
				return r, nil
			}
		}
	}
	for _, r := range candidates {
		if r.ClientID == "" {
			return r, nil
		}
	}
	switch len(candidates) {
	case 0:
		return Role{}, missingRef("role", name)
	case 1:
		return candidates[0], nil
	}
	return Role{}, fmt.Errorf("%w: role name %q is ambiguous across %d tenants", ErrInvalidInput, name, len(candidates))
}
