// Package department provides the capacity-bounded units children are
// placed into.
package department

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the municipal unit types.
type Kind string

const (
	// KindForskola is a kindergarten unit (ages 1-5).
	KindForskola Kind = "FORSKOLA"
	// KindFritidshem is an after-school unit (school-age children).
	KindFritidshem Kind = "FRITIDSHEM"
)

// IsValid checks if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindForskola || k == KindFritidshem
}

// Department represents a classroom/group with a hard seat capacity.
// Enrollment is always derived by counting admissions in qualifying
// states; it is never stored on this record.
type Department struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SiteID    uuid.UUID `json:"site_id" db:"site_id"`
	Name      string    `json:"name" db:"name"`
	Kind      Kind      `json:"kind" db:"kind"`
	Capacity  int       `json:"capacity" db:"capacity"`
	AgeMin    int       `json:"age_min" db:"age_min"`
	AgeMax    int       `json:"age_max" db:"age_max"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AcceptsAge checks the department's age range.
func (d Department) AcceptsAge(age int) bool {
	return age >= d.AgeMin && age <= d.AgeMax
}
