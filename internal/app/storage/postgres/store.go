package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
	"github.com/R3E-Network/datamigrations/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db sqlx.ExtContext
}

var _ storage.PersonStore = (*Store)(nil)
var _ storage.PersonSeeder = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx *sqlx.Tx) *Store {
	return &Store{db: tx}
}

const personColumns = `id, username, first_name, last_name, year_of_birth`

// --- PersonStore ------------------------------------------------------------

func (s *Store) ListPeople(ctx context.Context) ([]person.Person, error) {
	var people []person.Person
	err := sqlx.SelectContext(ctx, s.db, &people, `
		SELECT `+personColumns+`
		FROM test.people
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	if people == nil {
		people = []person.Person{}
	}
	return people, nil
}

func (s *Store) GetPerson(ctx context.Context, id uuid.UUID) (person.Person, error) {
	var p person.Person
	err := sqlx.GetContext(ctx, s.db, &p, `
		SELECT `+personColumns+`
		FROM test.people
		WHERE id = $1
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return person.Person{}, fmt.Errorf("person %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return person.Person{}, fmt.Errorf("get person %s: %w", id, err)
	}
	return p, nil
}

// --- PersonSeeder -----------------------------------------------------------

func (s *Store) ExistingPersonIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	found := make(map[uuid.UUID]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	query, bound, err := sqlx.In(`SELECT id FROM test.people WHERE id IN (?)`, args)
	if err != nil {
		return nil, fmt.Errorf("build existing ids query: %w", err)
	}

	var existing []uuid.UUID
	if err := sqlx.SelectContext(ctx, s.db, &existing, s.db.Rebind(query), bound...); err != nil {
		return nil, fmt.Errorf("query existing people: %w", err)
	}
	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

func (s *Store) InsertPeople(ctx context.Context, people []person.Person) (int64, error) {
	var inserted int64
	for _, p := range people {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO test.people (id, username, first_name, last_name, year_of_birth)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, p.ID.String(), p.Username, p.FirstName, p.LastName, p.YearOfBirth)
		if err != nil {
			return inserted, fmt.Errorf("insert person %s: %w", p.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("insert person %s: %w", p.ID, err)
		}
		inserted += n
	}
	return inserted, nil
}
