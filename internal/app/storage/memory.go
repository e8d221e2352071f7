package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
)

// Memory is a thread-safe in-memory persistence layer implementing the storage
// interfaces defined in this package. It is intended for tests and local runs.
type Memory struct {
	mu     sync.RWMutex
	people map[uuid.UUID]person.Person

	// FailInsertAt, when positive, makes the n-th row of the next InsertPeople
	// call fail. Rows of that call are discarded.
	FailInsertAt int
}

var _ PersonStore = (*Memory)(nil)
var _ PersonSeeder = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{people: make(map[uuid.UUID]person.Person)}
}

func (m *Memory) ListPeople(_ context.Context) ([]person.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]person.Person, 0, len(m.people))
	for _, p := range m.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) GetPerson(_ context.Context, id uuid.UUID) (person.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.people[id]
	if !ok {
		return person.Person{}, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *Memory) ExistingPersonIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.people[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// InsertPeople applies the batch atomically: either every new row is stored
// or none is.
func (m *Memory) InsertPeople(_ context.Context, people []person.Person) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[uuid.UUID]person.Person, len(people))
	for i, p := range people {
		if m.FailInsertAt > 0 && i+1 == m.FailInsertAt {
			m.FailInsertAt = 0
			return 0, fmt.Errorf("insert person %s: injected failure", p.ID)
		}
		if _, exists := m.people[p.ID]; exists {
			continue
		}
		staged[p.ID] = p
	}
	for id, p := range staged {
		m.people[id] = p
	}
	return int64(len(staged)), nil
}

// Len returns the number of stored people.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.people)
}
