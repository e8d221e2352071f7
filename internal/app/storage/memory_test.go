package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
)

func TestMemoryInsertIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p := person.NewFactory(nil)(uuid.New())

	n, err := m.InsertPeople(ctx, []person.Person{p, p})
	if err != nil || n != 1 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	n, err = m.InsertPeople(ctx, []person.Person{p})
	if err != nil || n != 0 {
		t.Fatalf("second insert: n=%d err=%v", n, err)
	}
	if _, err := m.GetPerson(ctx, p.ID); err != nil {
		t.Fatalf("GetPerson: %v", err)
	}
	if _, err := m.GetPerson(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing person: err = %v", err)
	}
}

func TestMemoryInjectedFailureDiscardsBatch(t *testing.T) {
	m := NewMemory()
	m.FailInsertAt = 2
	factory := person.NewFactory(nil)
	batch := []person.Person{factory(uuid.New()), factory(uuid.New()), factory(uuid.New())}

	if _, err := m.InsertPeople(context.Background(), batch); err == nil {
		t.Fatal("expected injected failure")
	}
	if m.Len() != 0 {
		t.Fatalf("partial batch visible: %d rows", m.Len())
	}
	if n, err := m.InsertPeople(context.Background(), batch); err != nil || n != 3 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}
