package postgres

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
	"github.com/R3E-Network/datamigrations/internal/app/storage"
)

var personRowColumns = []string{"id", "username", "first_name", "last_name", "year_of_birth"}

func newMockStore(t *testing.T) (*Store, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		raw.Close()
	})
	// The postgres driver name makes sqlx rebind to $n placeholders.
	db := sqlx.NewDb(raw, "postgres")
	return New(db), db, mock
}

func TestListPeople(t *testing.T) {
	store, _, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT id, username, first_name, last_name, year_of_birth\\s+FROM test.people\\s+ORDER BY username").
		WillReturnRows(sqlmock.NewRows(personRowColumns).
			AddRow(a.String(), "alice", "Alice", "A", 1990).
			AddRow(b.String(), "bob", "Bob", "B", 2001))

	people, err := store.ListPeople(context.Background())
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if len(people) != 2 || people[0].ID != a || people[1].YearOfBirth != 2001 {
		t.Fatalf("unexpected people %+v", people)
	}
}

func TestListPeopleEmptyIsNotNil(t *testing.T) {
	store, _, mock := newMockStore(t)
	mock.ExpectQuery("FROM test.people").WillReturnRows(sqlmock.NewRows(personRowColumns))

	people, err := store.ListPeople(context.Background())
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if people == nil || len(people) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", people)
	}
}

func TestGetPersonNotFound(t *testing.T) {
	store, _, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("WHERE id = \\$1").WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(personRowColumns))

	_, err := store.GetPerson(context.Background(), id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExistingPersonIDsExpandsInClause(t *testing.T) {
	store, _, mock := newMockStore(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM test.people WHERE id IN ($1, $2, $3)`)).
		WithArgs(a.String(), b.String(), c.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(b.String()))

	found, err := store.ExistingPersonIDs(context.Background(), []uuid.UUID{a, b, c})
	if err != nil {
		t.Fatalf("ExistingPersonIDs: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %v", found)
	}
	if _, ok := found[b]; !ok {
		t.Fatalf("expected %s in result", b)
	}
}

func TestExistingPersonIDsNoIDsSkipsQuery(t *testing.T) {
	store, _, _ := newMockStore(t)
	found, err := store.ExistingPersonIDs(context.Background(), nil)
	if err != nil || len(found) != 0 {
		t.Fatalf("found = %v, err = %v", found, err)
	}
}

func TestInsertPeopleCountsOnlyNewRows(t *testing.T) {
	store, _, mock := newMockStore(t)
	factory := person.NewFactory(nil)
	p1, p2 := factory(uuid.New()), factory(uuid.New())

	insert := regexp.QuoteMeta("INSERT INTO test.people (id, username, first_name, last_name, year_of_birth)")
	mock.ExpectExec(insert).
		WithArgs(p1.ID.String(), p1.Username, p1.FirstName, p1.LastName, p1.YearOfBirth).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs(p2.ID.String(), p2.Username, p2.FirstName, p2.LastName, p2.YearOfBirth).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.InsertPeople(context.Background(), []person.Person{p1, p2})
	if err != nil {
		t.Fatalf("InsertPeople: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}
}

func TestWithTxRunsInsideTransaction(t *testing.T) {
	store, db, mock := newMockStore(t)
	p := person.NewFactory(nil)(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test.people").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := store.WithTx(tx).InsertPeople(context.Background(), []person.Person{p}); err != nil {
		t.Fatalf("InsertPeople: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS test;
		CREATE TABLE IF NOT EXISTS test.people (
			id UUID PRIMARY KEY, username TEXT NOT NULL, first_name TEXT NOT NULL,
			last_name TEXT NOT NULL, year_of_birth INTEGER NOT NULL DEFAULT 0)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	store := New(db)
	p := person.NewFactory(nil)(uuid.New())
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM test.people WHERE id = $1`, p.ID.String()) })

	for i, want := range []int64{1, 0} {
		n, err := store.InsertPeople(ctx, []person.Person{p})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if n != want {
			t.Fatalf("insert %d wrote %d rows, want %d", i, n, want)
		}
	}

	found, err := store.ExistingPersonIDs(ctx, []uuid.UUID{p.ID, uuid.New()})
	if err != nil {
		t.Fatalf("existing ids: %v", err)
	}
	if _, ok := found[p.ID]; !ok || len(found) != 1 {
		t.Fatalf("found = %v", found)
	}

	got, err := store.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if got.Username != p.Username || got.YearOfBirth != p.YearOfBirth {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}
