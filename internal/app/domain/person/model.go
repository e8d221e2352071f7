package person

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Year of birth bounds for seeded rows: MinYearOfBirth inclusive,
// MaxYearOfBirth exclusive.
const (
	MinYearOfBirth = 1985
	MaxYearOfBirth = 2025
)

// Person is a row of the people table. ID is the identity.
type Person struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	FirstName   string    `db:"first_name" json:"firstName"`
	LastName    string    `db:"last_name" json:"lastName"`
	YearOfBirth int       `db:"year_of_birth" json:"yearOfBirth"`
}

// Factory builds the seed row for an id.
type Factory func(id uuid.UUID) Person

// NewFactory returns a Factory that derives names from the id and draws the
// year of birth from r. A nil r uses the global source.
func NewFactory(r *rand.Rand) Factory {
	return func(id uuid.UUID) Person {
		return Person{
			ID:          id,
			Username:    "user" + id.String(),
			FirstName:   "FirstName" + id.String(),
			LastName:    "LastName" + id.String(),
			YearOfBirth: RandomYear(r),
		}
	}
}

// RandomYear returns a year in [MinYearOfBirth, MaxYearOfBirth).
func RandomYear(r *rand.Rand) int {
	span := MaxYearOfBirth - MinYearOfBirth
	if r == nil {
		return MinYearOfBirth + rand.IntN(span)
	}
	return MinYearOfBirth + r.IntN(span)
}
