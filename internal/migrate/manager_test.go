package migrate

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	src := `create table a (x text default 'a;b'); -- trailing; comment
-- full line comment;
insert into a values ('it''s');
select 1`
	stmts := splitStatements(src)
	var nonEmpty []string
	for _, s := range stmts {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(s))
		}
	}
	if len(nonEmpty) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(nonEmpty), nonEmpty)
	}
	if !strings.Contains(nonEmpty[0], "'a;b'") {
		t.Fatalf("semicolon inside string split the statement: %q", nonEmpty[0])
	}
	if strings.Contains(strings.Join(nonEmpty, " "), "comment") {
		t.Fatalf("comments were not stripped: %q", nonEmpty)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	m := NewManager(nil)
	files, err := m.collect(".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) == 0 || files[0] != "0001_identity.up.sql" {
		t.Fatalf("unexpected embedded migrations: %v", files)
	}
}

func TestUpAppliesPendingOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	src := fstest.MapFS{
		"m/0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"m/0001_a.down.sql": {Data: []byte("drop table a;")},
		"m/0002_b.up.sql":   {Data: []byte("create table b (id text); create index b_idx on b (id);")},
	}
	m := NewManager(db, WithSource(src, "m"))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index b_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_b.up.sql", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_b.up.sql" {
		t.Fatalf("unexpected applied list: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	src := fstest.MapFS{
		"m/0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"m/0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	m := NewManager(db, WithSource(src, "m"), WithMigrationsTable("tracking"))

	mock.ExpectExec("create table if not exists tracking").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from tracking").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from tracking").WithArgs("0001_a.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	last, err := m.Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if last != "0001_a.up.sql" {
		t.Fatalf("rolled back %q", last)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
