package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows admission listings.
type ListFilter struct {
	DepartmentID *uuid.UUID
	ChildID      *uuid.UUID
	Status       *Status
	Limit        int
	Offset       int
}

// Repository persists admissions and their append-only event trail.
// Status updates are optimistic: they match on the expected version and
// fail with shared.ErrConcurrentModification when the row moved.
type Repository interface {
	Create(ctx context.Context, a Admission, event Event) error
	GetByID(ctx context.Context, id uuid.UUID) (Admission, error)
	List(ctx context.Context, filter ListFilter) ([]Admission, int, error)
	ListQueued(ctx context.Context, departmentID uuid.UUID) ([]Admission, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]Admission, error)
	ListFutureDue(ctx context.Context, asOf time.Time) ([]Admission, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to Status, endDate *time.Time, event Event) error
	UpdateRateCategory(ctx context.Context, id uuid.UUID, expectedVersion int64, rate string, event Event) error
	UpdateTimetable(ctx context.Context, id uuid.UUID, expectedVersion int64, timetable Timetable, event Event) error
	ListEvents(ctx context.Context, admissionID uuid.UUID) ([]Event, error)
}
