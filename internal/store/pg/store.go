// Package pg implements auth.Store on PostgreSQL through the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"genaccess.org/internal/auth"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	return s.db.PingContext(ctx)
}

// constraintFields maps unique constraints to the field reported in conflicts.
var constraintFields = map[string]string{
	"clients_name_key":        "name",
	"permissions_name_key":    "name",
	"roles_client_name_key":   "name",
	"roles_unscoped_name_key": "name",
	"users_username_key":      "username",
	"users_email_key":         "email",
}

// referenceKinds maps foreign keys to the kind of referenced entity.
var referenceKinds = map[string]string{
	"roles_client_id_fkey":                "client",
	"users_client_id_fkey":                "client",
	"role_permissions_permission_id_fkey": "permission",
	"role_permissions_role_id_fkey":       "role",
	"user_roles_role_id_fkey":             "role",
	"user_roles_user_id_fkey":             "user",
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// translate maps constraint violations onto auth outcome errors. ref names
// the referenced value for foreign key failures on insert.
func translate(err error, value, ref string) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := constraintFields[pgErr.ConstraintName]
		if field == "" {
			field = "value"
		}
		return &auth.ConflictError{Field: field, Value: value}
	case pgerrcode.ForeignKeyViolation:
		kind := referenceKinds[pgErr.ConstraintName]
		if kind == "" {
			kind = "reference"
		}
		return &auth.ReferenceError{Kind: kind, Ref: ref}
	}
	return err
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", auth.ErrNotFound, kind, id)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// splitIDs decodes the comma separated id lists produced by string_agg.
func splitIDs(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func mustAffect(res sql.Result, kind, id string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return notFound(kind, id)
	}
	return nil
}
