package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	requireAuthenticated = Requirement{}
	requireSuperAdmin    = RequireRole(RoleSuperAdmin)
	requireAdmin         = RequireAnyRole(RoleSuperAdmin, RoleClientAdmin)
)

// Directory applies authorization and tenant scoping to client, permission,
// role and user management. Every operation takes the acting identity.
type Directory struct {
	store Store
}

func NewDirectory(store Store) (*Directory, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Directory{store: store}, nil
}

// Clients

func (d *Directory) ListClients(ctx context.Context, actor Identity) ([]Client, error) {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return nil, err
	}
	return d.store.ListClients(ctx)
}

func (d *Directory) GetClient(ctx context.Context, actor Identity, id string) (Client, error) {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return Client{}, err
	}
	return d.client(ctx, id)
}

// ClientUsage reports how many users and roles the client owns.
func (d *Directory) ClientUsage(ctx context.Context, actor Identity, id string) (Usage, error) {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return Usage{}, err
	}
	if _, err := d.client(ctx, id); err != nil {
		return Usage{}, err
	}
	return d.store.ClientUsage(ctx, id)
}

func (d *Directory) CreateClient(ctx context.Context, actor Identity, name, description string) (Client, error) {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return Client{}, err
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if err := checkLength("client name", name, 3, 100); err != nil {
		return Client{}, err
	}
	if err := checkLength("client description", description, 0, 200); err != nil {
		return Client{}, err
	}
	if err := d.clientNameFree(ctx, name, ""); err != nil {
		return Client{}, err
	}
	return d.store.CreateClient(ctx, Client{Name: name, Description: description})
}

func (d *Directory) UpdateClient(ctx context.Context, actor Identity, id string, upd ClientUpdate) (Client, error) {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return Client{}, err
	}
	c, err := d.client(ctx, id)
	if err != nil {
		return Client{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := checkLength("client name", name, 3, 100); err != nil {
			return Client{}, err
		}
		if name != c.Name {
			if err := d.clientNameFree(ctx, name, c.ID); err != nil {
				return Client{}, err
			}
		}
		c.Name = name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		if err := checkLength("client description", desc, 0, 200); err != nil {
			return Client{}, err
		}
		c.Description = desc
	}
	return d.store.UpdateClient(ctx, c)
}

// DeleteClient refuses while the client still owns users or roles.
func (d *Directory) DeleteClient(ctx context.Context, actor Identity, id string) error {
	if err := Authorize(actor, requireSuperAdmin); err != nil {
		return err
	}
	c, err := d.client(ctx, id)
	if err != nil {
		return err
	}
	usage, err := d.store.ClientUsage(ctx, c.ID)
	if err != nil {
		return err
	}
	if !usage.Empty() {
		return fmt.Errorf("%w: client %s still owns %d users and %d roles", ErrPrecondition, c.Name, usage.Users, usage.Roles)
	}
	return d.store.DeleteClient(ctx, c.ID)
}

func (d *Directory) client(ctx context.Context, id string) (Client, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Client{}, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	c, err := d.store.GetClient(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Client{}, missingRef("client", id)
	}
	return c, err
}

func (d *Directory) clientNameFree(ctx context.Context, name, selfID string) error {
	existing, err := d.store.FindClientByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return conflict("name", name)
	}
	return nil
}

// Permissions

func (d *Directory) ListPermissions(ctx context.Context, actor Identity) ([]Permission, error) {
	if err := Authorize(actor, requireAuthenticated); err != nil {
		return nil, err
	}
	return d.store.ListPermissions(ctx)
}

func (d *Directory) GetPermission(ctx context.Context, actor Identity, id string) (Permission, error) {
	if err := Authorize(actor, requireAuthenticated); err != nil {
		return Permission{}, err
	}
	return d.permission(ctx, id)
}

func (d *Directory) CreatePermission(ctx context.Context, actor Identity, name, description string) (Permission, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return Permission{}, err
	}
	name = strings.TrimSpace(name)
	if err := checkLength("permission name", name, 3, 50); err != nil {
		return Permission{}, err
	}
	if err := d.permissionNameFree(ctx, name, ""); err != nil {
		return Permission{}, err
	}
	return d.store.CreatePermission(ctx, Permission{Name: name, Description: strings.TrimSpace(description)})
}

func (d *Directory) UpdatePermission(ctx context.Context, actor Identity, id string, upd PermissionUpdate) (Permission, error) {
	if err := Authorize(actor, requireAdmin); err != nil {
		return Permission{}, err
	}
	p, err := d.permission(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := checkLength("permission name", name, 3, 50); err != nil {
			return Permission{}, err
		}
		if name != p.Name {
			if err := d.permissionNameFree(ctx, name, p.ID); err != nil {
				return Permission{}, err
			}
		}
		p.Name = name
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	return d.store.UpdatePermission(ctx, p)
}

func (d *Directory) DeletePermission(ctx context.Context, actor Identity, id string) error {
	if err := Authorize(actor, requireAdmin); err != nil {
		return err
	}
	p, err := d.permission(ctx, id)
	if err != nil {
		return err
	}
	return d.store.DeletePermission(ctx, p.ID)
}

func (d *Directory) permission(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	p, err := d.store.GetPermission(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Permission{}, missingRef("permission", id)
	}
	return p, err
}

func (d *Directory) permissionNameFree(ctx context.Context, name, selfID string) error {
	existing, err := d.store.FindPermissionByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return conflict("name", name)
	}
	return nil
}

// resolvePermissions checks every id exists and drops duplicates.
func (d *Directory) resolvePermissions(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := d.permission(ctx, id); err != nil {
			return nil, err
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		if min == 0 {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, max)
		}
		return fmt.Errorf("%w: %s must be between %d and %d characters", ErrInvalidInput, field, min, max)
	}
	return nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
