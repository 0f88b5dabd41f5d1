package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceKind selects one of the university reference tables. They share a
// shape (unique name, no other fields) and are managed through one code path.
type ReferenceKind string

const (
	KindFaculty     ReferenceKind = "faculties"
	KindDegreeLevel ReferenceKind = "degree_levels"
	KindYearLevel   ReferenceKind = "year_levels"
)

// Valid reports whether k names a known reference table.
func (k ReferenceKind) Valid() bool {
	switch k {
	case KindFaculty, KindDegreeLevel, KindYearLevel:
		return true
	}
	return false
}

// ReferenceEntry is a row in one of the reference tables.
type ReferenceEntry struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// JobPosition is a staff job title. Coin rules restrict issuance to a set of
// positions, so positions are kept apart from the plain reference tables.
type JobPosition struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
