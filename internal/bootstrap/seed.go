// Package bootstrap seeds the default tenant, the permission catalog, the
// built-in roles and the first super admin.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/obs"
)

// Admin describes the initial super admin. An empty Password skips creating it.
type Admin struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Result lists what the seed created on this run.
type Result struct {
	Client      auth.Client
	Permissions int
	Roles       int
	AdminUser   bool
}

// Seed makes the baseline data exist. Running it again creates nothing new.
func Seed(ctx context.Context, store auth.Store, admin Admin) (Result, error) {
	var res Result
	log := obs.Logger().With("component", "bootstrap")

	client, created, err := ensureClient(ctx, store)
	if err != nil {
		return res, err
	}
	res.Client = client
	if created {
		log.Info("created default client", "client_id", client.ID, "name", client.Name)
	}

	permIDs := make(map[string]string, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		existing, err := store.FindPermissionByName(ctx, p.Name)
		switch {
		case err == nil:
			permIDs[p.Name] = existing.ID
			continue
		case !errors.Is(err, auth.ErrNotFound):
			return res, fmt.Errorf("lookup permission %s: %w", p.Name, err)
		}
		createdPerm, err := store.CreatePermission(ctx, p)
		if err != nil {
			return res, fmt.Errorf("create permission %s: %w", p.Name, err)
		}
		permIDs[p.Name] = createdPerm.ID
		res.Permissions++
	}

	roleIDs, n, err := ensureRoles(ctx, store, client.ID, permIDs)
	if err != nil {
		return res, err
	}
	res.Roles = n

	if res.AdminUser, err = ensureAdmin(ctx, store, client.ID, roleIDs[auth.RoleSuperAdmin], admin, log); err != nil {
		return res, err
	}
	log.Info("bootstrap complete", "permissions_created", res.Permissions, "roles_created", res.Roles, "admin_created", res.AdminUser)
	return res, nil
}

func ensureClient(ctx context.Context, store auth.Store) (auth.Client, bool, error) {
	c, err := store.FindClientByName(ctx, auth.DefaultClientName)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return auth.Client{}, false, fmt.Errorf("lookup default client: %w", err)
	}
	c, err = store.CreateClient(ctx, auth.Client{Name: auth.DefaultClientName, Description: "System default client"})
	if err != nil {
		return auth.Client{}, false, fmt.Errorf("create default client: %w", err)
	}
	return c, true, nil
}

func ensureRoles(ctx context.Context, store auth.Store, clientID string, permIDs map[string]string) (map[string]string, int, error) {
	existing, err := store.ListRolesByClient(ctx, clientID)
	if err != nil {
		return nil, 0, fmt.Errorf("list system roles: %w", err)
	}
	ids := make(map[string]string, len(auth.BuiltinRoles))
	for _, r := range existing {
		ids[r.Name] = r.ID
	}

	names := make([]string, 0, len(auth.BuiltinRoles))
	for name := range auth.BuiltinRoles {
		names = append(names, name)
	}
	sort.Strings(names)

	created := 0
	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		var perms []string
		for _, p := range auth.BuiltinRoles[name] {
			perms = append(perms, permIDs[p])
		}
		r, err := store.CreateRole(ctx, auth.Role{Name: name, ClientID: clientID, PermissionIDs: perms})
		if err != nil {
			return nil, created, fmt.Errorf("create role %s: %w", name, err)
		}
		ids[name] = r.ID
		created++
	}
	return ids, created, nil
}

func ensureAdmin(ctx context.Context, store auth.Store, clientID, roleID string, admin Admin, log *slog.Logger) (bool, error) {
	admin.Username = strings.TrimSpace(admin.Username)
	if admin.Username == "" || admin.Password == "" {
		log.Warn("bootstrap admin password not configured; skipping admin user")
		return false, nil
	}
	if _, err := store.FindUserByUsername(ctx, admin.Username); err == nil {
		return false, nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return false, fmt.Errorf("lookup admin user: %w", err)
	}
	hash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	u, err := store.CreateUser(ctx, auth.User{
		FirstName:    admin.FirstName,
		LastName:     admin.LastName,
		Username:     admin.Username,
		Email:        strings.TrimSpace(admin.Email),
		PasswordHash: hash,
		ClientID:     clientID,
		RoleIDs:      []string{roleID},
	})
	if err != nil {
		return false, fmt.Errorf("create admin user: %w", err)
	}
	log.Info("created super admin", "user_id", u.ID, "username", u.Username)
	return true, nil
}
