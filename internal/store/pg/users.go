package pg

import (
	"context"
	"database/sql"
	"errors"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/ids"
)

const userSelect = `
	select u.id, u.first_name, u.last_name, u.username, u.email, u.password_hash,
		coalesce(u.client_id, ''), u.created_at, u.updated_at,
		coalesce(string_agg(ur.role_id, ',' order by ur.role_id), '')
	from users u
	left join user_roles ur on ur.user_id = u.id
`

const userGroup = ` group by u.id order by u.username`

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u     auth.User
		roles string
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &u.PasswordHash,
		&u.ClientID, &u.CreatedAt, &u.UpdatedAt, &roles); err != nil {
		return auth.User{}, err
	}
	u.RoleIDs = splitIDs(roles)
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, where string, args ...any) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+where+userGroup, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) userBy(ctx context.Context, where, value string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+where+userGroup, value))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, notFound("user", value)
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	u.ID = ids.New()
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, first_name, last_name, username, email, password_hash, client_id)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.FirstName, u.LastName, u.Username, u.Email, u.PasswordHash, nullIfEmpty(u.ClientID)); err != nil {
		return auth.User{}, translateUser(err, u)
	}
	if err := setUserRoles(ctx, tx, u.ID, u.RoleIDs); err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	return s.userBy(ctx, ` where u.id = $1`, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (auth.User, error) {
	return s.userBy(ctx, ` where u.username = $1`, username)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userBy(ctx, ` where u.email = $1`, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	return s.queryUsers(ctx, "")
}

func (s *Store) ListUsersByClient(ctx context.Context, clientID string) ([]auth.User, error) {
	if clientID == "" {
		return s.queryUsers(ctx, ` where u.client_id is null`)
	}
	return s.queryUsers(ctx, ` where u.client_id = $1`, clientID)
}

func (s *Store) UpdateUser(ctx context.Context, u auth.User) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set first_name = $2, last_name = $3, username = $4, email = $5,
			password_hash = $6, client_id = $7, updated_at = now()
		where id = $1
	`, u.ID, u.FirstName, u.LastName, u.Username, u.Email, u.PasswordHash, nullIfEmpty(u.ClientID))
	if err != nil {
		return auth.User{}, translateUser(err, u)
	}
	if err := mustAffect(res, "user", u.ID); err != nil {
		return auth.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, u.ID); err != nil {
		return auth.User{}, err
	}
	if err := setUserRoles(ctx, tx, u.ID, u.RoleIDs); err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "user", id)
}

func setUserRoles(ctx context.Context, tx *sql.Tx, userID string, roleIDs []string) error {
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing
		`, userID, rid); err != nil {
			return translate(err, "", rid)
		}
	}
	return nil
}

// translateUser picks the conflicting value from the violated constraint.
func translateUser(err error, u auth.User) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	value := u.Username
	if pgErr.ConstraintName == "users_email_key" {
		value = u.Email
	}
	return translate(err, value, u.ClientID)
}
