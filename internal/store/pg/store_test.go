package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"genaccess.org/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func pgErr(code, constraint string) error {
	return &pgconn.PgError{Code: code, ConstraintName: constraint}
}

func TestCreateClientConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("insert into clients").
		WithArgs(sqlmock.AnyArg(), "Acme", "").
		WillReturnError(pgErr(pgerrcode.UniqueViolation, "clients_name_key"))

	_, err := store.CreateClient(context.Background(), auth.Client{Name: "Acme"})
	var ce *auth.ConflictError
	if !errors.As(err, &ce) || ce.Field != "name" || ce.Value != "Acme" {
		t.Fatalf("expected name conflict, got %v", err)
	}
}

func TestGetClientNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select id, name, description, created_at, updated_at from clients where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	if _, err := store.GetClient(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteClientStillReferenced(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from clients").
		WithArgs("c1").
		WillReturnError(pgErr(pgerrcode.ForeignKeyViolation, "users_client_id_fkey"))

	if err := store.DeleteClient(context.Background(), "c1"); !errors.Is(err, auth.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestDeleteClientMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from clients").WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteClient(context.Background(), "c1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientUsage(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select count").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"users", "roles"}).AddRow(2, 1))

	u, err := store.ClientUsage(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ClientUsage: %v", err)
	}
	if u.Users != 2 || u.Roles != 1 || u.Empty() {
		t.Fatalf("unexpected usage %+v", u)
	}
}

var roleCols = []string{"id", "name", "client_id", "created_at", "updated_at", "permission_ids"}

func TestCreateRoleWritesPermissionsInTransaction(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("insert into roles").WithArgs(sqlmock.AnyArg(), "MANAGER", "acme").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs(sqlmock.AnyArg(), "p1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs(sqlmock.AnyArg(), "p2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from roles r").WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("r1", "MANAGER", "acme", now, now, "p1,p2"))

	r, err := store.CreateRole(context.Background(), auth.Role{Name: "MANAGER", ClientID: "acme", PermissionIDs: []string{"p1", "p2"}})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if r.ClientID != "acme" || len(r.PermissionIDs) != 2 || r.PermissionIDs[1] != "p2" {
		t.Fatalf("unexpected role %+v", r)
	}
}

func TestCreateRoleUnknownPermissionRollsBack(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs(sqlmock.AnyArg(), "ghost").
		WillReturnError(pgErr(pgerrcode.ForeignKeyViolation, "role_permissions_permission_id_fkey"))
	mock.ExpectRollback()

	_, err := store.CreateRole(context.Background(), auth.Role{Name: "MANAGER", PermissionIDs: []string{"ghost"}})
	var re *auth.ReferenceError
	if !errors.As(err, &re) || re.Kind != "permission" || re.Ref != "ghost" {
		t.Fatalf("expected permission reference error, got %v", err)
	}
}

func TestUnscopedRoleListing(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("where r.client_id is null").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("r1", "AUDITOR", "", now, now, ""))

	roles, err := store.ListRolesByClient(context.Background(), "")
	if err != nil {
		t.Fatalf("ListRolesByClient: %v", err)
	}
	if len(roles) != 1 || roles[0].Scoped() || len(roles[0].PermissionIDs) != 0 {
		t.Fatalf("unexpected roles %+v", roles)
	}
}

var userCols = []string{"id", "first_name", "last_name", "username", "email", "password_hash", "client_id", "created_at", "updated_at", "role_ids"}

func TestFindUserByUsername(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("where u.username").WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Bob", "B", "bob", "bob@acme.test", "hash", "acme", now, now, "r1,r2"))

	u, err := store.FindUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if u.ClientID != "acme" || len(u.RoleIDs) != 2 || u.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestUpdateUserEmailConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("update users").
		WillReturnError(pgErr(pgerrcode.UniqueViolation, "users_email_key"))
	mock.ExpectRollback()

	_, err := store.UpdateUser(context.Background(), auth.User{ID: "u1", Username: "bob", Email: "taken@acme.test"})
	var ce *auth.ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" || ce.Value != "taken@acme.test" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestDeleteUserMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from users").WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.DeleteUser(context.Background(), "u1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
