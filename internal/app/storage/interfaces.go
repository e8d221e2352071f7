package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// PersonStore reads person records.
type PersonStore interface {
	ListPeople(ctx context.Context) ([]person.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (person.Person, error)
}

// PersonSeeder writes person records idempotently. Implementations bound to a
// transaction see their own uncommitted writes.
type PersonSeeder interface {
	// ExistingPersonIDs returns the subset of ids already stored.
	ExistingPersonIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)
	// InsertPeople inserts every row whose id is not yet stored and returns
	// the number of rows written.
	InsertPeople(ctx context.Context, people []person.Person) (int64, error)
}
