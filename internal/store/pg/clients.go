package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
)

const clientColumns = `id, name, description, created_at, updated_at`

func scanClient(row rowScanner) (auth.Client, error) {
	var c auth.Client
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateClient(ctx context.Context, c auth.Client) (auth.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into clients (id, name, description)
		values ($1, $2, $3)
		returning `+clientColumns, ids.New(), c.Name, c.Description)
	created, err := scanClient(row)
	if err != nil {
		return auth.Client{}, translate(err, c.Name, "")
	}
	return created, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (auth.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Client{}, notFound("client", id)
	}
	return c, err
}

func (s *Store) FindClientByName(ctx context.Context, name string) (auth.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Client{}, notFound("client", name)
	}
	return c, err
}

func (s *Store) ListClients(ctx context.Context) ([]auth.Client, error) {
	rows, err := s.db.QueryContext(ctx, `select `+clientColumns+` from clients order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, c auth.Client) (auth.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		update clients set name = $2, description = $3, updated_at = now()
		where id = $1
		returning `+clientColumns, c.ID, c.Name, c.Description)
	updated, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Client{}, notFound("client", c.ID)
	}
	if err != nil {
		return auth.Client{}, translate(err, c.Name, "")
	}
	return updated, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from clients where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: client %s is still referenced", auth.ErrPrecondition, id)
		}
		return err
	}
	return mustAffect(res, "client", id)
}

func (s *Store) ClientUsage(ctx context.Context, id string) (auth.Usage, error) {
	var u auth.Usage
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from users where client_id = $1),
			(select count(*) from roles where client_id = $1)
	`, id).Scan(&u.Users, &u.Roles)
	return u, err
}
