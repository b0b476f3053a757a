// Package admission provides the placement lifecycle for a single child
// in a single department.
package admission

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of an admission.
type Status string

const (
	StatusDraft      Status = "DRAFT"      // Being prepared by a caseworker, no capacity held
	StatusQueued     Status = "QUEUED"     // Waiting for a seat
	StatusActive     Status = "ACTIVE"     // Child attends, consumes a seat
	StatusFuture     Status = "FUTURE"     // Start date ahead, seat already consumed
	StatusHistorical Status = "HISTORICAL" // Completed normally
	StatusTerminated Status = "TERMINATED" // Ended early
	StatusDeleted    Status = "DELETED"    // Soft deleted, retained for audit
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusQueued, StatusActive, StatusFuture, StatusHistorical, StatusTerminated, StatusDeleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no outgoing edges.
func (s Status) IsTerminal() bool {
	return s == StatusHistorical || s == StatusTerminated || s == StatusDeleted
}

// ConsumesCapacity reports whether the status counts against department
// capacity. Future admissions are not free options.
func (s Status) ConsumesCapacity() bool {
	return s == StatusActive || s == StatusFuture
}

// transitions is the fixed edge table. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusQueued, StatusDeleted},
	StatusQueued: {StatusActive, StatusFuture, StatusTerminated, StatusDeleted},
	StatusActive: {StatusHistorical, StatusTerminated, StatusDeleted},
	StatusFuture: {StatusActive, StatusTerminated, StatusDeleted},
}

// CanTransition checks the edge against the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CapacityDelta is the enrollment change a from→to edge causes: +1 when
// the admission starts consuming a seat, -1 when it stops.
func CapacityDelta(from, to Status) int {
	delta := 0
	if to.ConsumesCapacity() {
		delta++
	}
	if from.ConsumesCapacity() {
		delta--
	}
	return delta
}

// Admission is a child's placement record against one department.
type Admission struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	ChildID      uuid.UUID  `json:"child_id" db:"child_id"`
	DepartmentID uuid.UUID  `json:"department_id" db:"department_id"`
	Status       Status     `json:"status" db:"status"`
	StartDate    time.Time  `json:"start_date" db:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty" db:"end_date"`
	RateCategory string     `json:"rate_category" db:"rate_category"`
	Timetable    Timetable  `json:"timetable" db:"timetable"`
	Guarantee    bool       `json:"guarantee" db:"guarantee"`
	QueuedAt     *time.Time `json:"queued_at,omitempty" db:"queued_at"`
	Version      int64      `json:"version" db:"version"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`

	// ChildName is populated by listing joins for display ordering only.
	ChildName string `json:"child_name,omitempty" db:"-"`
}

// Event is an append-only audit record. Events are never mutated or
// deleted, including for soft-deleted admissions.
type Event struct {
	ID          int64     `json:"id" db:"id"`
	AdmissionID uuid.UUID `json:"admission_id" db:"admission_id"`
	FromStatus  Status    `json:"from_status" db:"from_status"`
	ToStatus    Status    `json:"to_status" db:"to_status"`
	Actor       string    `json:"actor" db:"actor"`
	Reason      string    `json:"reason" db:"reason"`
	At          time.Time `json:"at" db:"at"`
}
