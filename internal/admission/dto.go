package admission

import (
	"time"

	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// CreateAdmissionRequest is the payload for POST /api/admissions.
type CreateAdmissionRequest struct {
	ChildID      uuid.UUID `json:"child_id" validate:"required"`
	DepartmentID uuid.UUID `json:"department_id" validate:"required"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	RateCategory string    `json:"rate_category" validate:"required,max=40"`
	Timetable    Timetable `json:"timetable"`
	Queue        bool      `json:"queue"`
	Actor        string    `json:"actor" validate:"required,max=80"`
}

// TransitionRequest is the payload for POST /api/admissions/{id}/transition.
type TransitionRequest struct {
	Target  Status     `json:"target" validate:"required"`
	Reason  string     `json:"reason" validate:"max=500"`
	EndDate *time.Time `json:"end_date,omitempty"`
	Actor   string     `json:"actor" validate:"required,max=80"`
}

// ListResponse wraps a listing page.
type ListResponse struct {
	Admissions []Admission       `json:"admissions"`
	Pagination shared.Pagination `json:"pagination"`
}
