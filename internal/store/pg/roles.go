package pg

import (
	"context"
	"database/sql"
	"errors"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
)

const roleSelect = `
	select r.id, r.name, coalesce(r.client_id, ''), r.created_at, r.updated_at,
		coalesce(string_agg(rp.permission_id, ',' order by rp.permission_id), '')
	from roles r
	left join role_permissions rp on rp.role_id = r.id
`

const roleGroup = ` group by r.id order by r.name, r.client_id`

func scanRole(row rowScanner) (auth.Role, error) {
	var (
		r     auth.Role
		perms string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.ClientID, &r.CreatedAt, &r.UpdatedAt, &perms); err != nil {
		return auth.Role{}, err
	}
	r.PermissionIDs = splitIDs(perms)
	return r, nil
}

func (s *Store) queryRoles(ctx context.Context, where string, args ...any) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, roleSelect+where+roleGroup, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r.ID = ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into roles (id, name, client_id) values ($1, $2, $3)
	`, r.ID, r.Name, nullIfEmpty(r.ClientID)); err != nil {
		return auth.Role{}, translate(err, r.Name, r.ClientID)
	}
	if err := setRolePermissions(ctx, tx, r.ID, r.PermissionIDs); err != nil {
		return auth.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Role{}, err
	}
	return s.GetRole(ctx, r.ID)
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, roleSelect+` where r.id = $1`+roleGroup, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, notFound("role", id)
	}
	return r, err
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	return s.queryRoles(ctx, "")
}

func (s *Store) ListRolesByClient(ctx context.Context, clientID string) ([]auth.Role, error) {
	if clientID == "" {
		return s.queryRoles(ctx, ` where r.client_id is null`)
	}
	return s.queryRoles(ctx, ` where r.client_id = $1`, clientID)
}

func (s *Store) FindRolesByName(ctx context.Context, name string) ([]auth.Role, error) {
	return s.queryRoles(ctx, ` where r.name = $1`, name)
}

// UpdateRole renames the role and replaces its permission set. The scope is fixed at creation.
func (s *Store) UpdateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update roles set name = $2, updated_at = now() where id = $1`, r.ID, r.Name)
	if err != nil {
		return auth.Role{}, translate(err, r.Name, "")
	}
	if err := mustAffect(res, "role", r.ID); err != nil {
		return auth.Role{}, err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, r.ID); err != nil {
		return auth.Role{}, err
	}
	if err := setRolePermissions(ctx, tx, r.ID, r.PermissionIDs); err != nil {
		return auth.Role{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Role{}, err
	}
	return s.GetRole(ctx, r.ID)
}

// DeleteRole removes assignments through the cascading keys.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "role", id)
}

func setRolePermissions(ctx context.Context, tx *sql.Tx, roleID string, permissionIDs []string) error {
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id) values ($1, $2)
			on conflict do nothing
		`, roleID, pid); err != nil {
			return translate(err, "", pid)
		}
	}
	return nil
}
