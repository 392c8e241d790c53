package pg

import (
	"context"
	"database/sql"
	"errors"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
)

const permissionColumns = `id, name, description, created_at`

func scanPermission(row rowScanner) (auth.Permission, error) {
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	return p, err
}

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	created, err := scanPermission(s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description)
		values ($1, $2, $3)
		returning `+permissionColumns, ids.New(), p.Name, p.Description))
	if err != nil {
		return auth.Permission{}, translate(err, p.Name, "")
	}
	return created, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, notFound("permission", id)
	}
	return p, err
}

func (s *Store) FindPermissionByName(ctx context.Context, name string) (auth.Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, notFound("permission", name)
	}
	return p, err
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `select `+permissionColumns+` from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) UpdatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	updated, err := scanPermission(s.db.QueryRowContext(ctx, `
		update permissions set name = $2, description = $3
		where id = $1
		returning `+permissionColumns, p.ID, p.Name, p.Description))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, notFound("permission", p.ID)
	}
	if err != nil {
		return auth.Permission{}, translate(err, p.Name, "")
	}
	return updated, nil
}

// DeletePermission detaches the permission from roles through the cascading key.
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "permission", id)
}
