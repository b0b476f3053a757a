// Package dualplacement splits a single child across two departments
// under non-overlapping schedules.
package dualplacement

import (
	"time"

	"github.com/google/uuid"
)

// DualPlacement links exactly two admissions for the same child. The two
// linked admissions' assigned time windows never overlap.
type DualPlacement struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	ChildID              uuid.UUID `json:"child_id" db:"child_id"`
	PrimaryAdmissionID   uuid.UUID `json:"primary_admission_id" db:"primary_admission_id"`
	SecondaryAdmissionID uuid.UUID `json:"secondary_admission_id" db:"secondary_admission_id"`
	CreatedBy            string    `json:"created_by" db:"created_by"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}
