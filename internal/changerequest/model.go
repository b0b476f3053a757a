// Package changerequest holds proposed admission changes that require an
// approval step before they reach the state machine.
package changerequest

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the supported request types.
type Type string

const (
	// TypeTermination proposes ending an admission at a given date.
	TypeTermination Type = "TERMINATION"
	// TypeDepartmentChange proposes moving the child to another department.
	TypeDepartmentChange Type = "DEPARTMENT_CHANGE"
	// TypeRateCategory proposes a billing rate category change.
	TypeRateCategory Type = "RATE_CATEGORY"
)

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeTermination, TypeDepartmentChange, TypeRateCategory:
		return true
	default:
		return false
	}
}

// Status represents the request lifecycle. Resolved requests are
// immutable history.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	// StatusImplemented marks an approved change whose side effect has
	// been applied. Termination requests stop at APPROVED.
	StatusImplemented Status = "IMPLEMENTED"
)

// Decision is the approver's verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Payload carries the type-specific parameters of a request.
type Payload struct {
	TerminationDate    *time.Time `json:"termination_date,omitempty"`
	TargetDepartmentID *uuid.UUID `json:"target_department_id,omitempty"`
	RateCategory       string     `json:"rate_category,omitempty"`
}

// ChangeRequest is a pending workflow object referencing one admission.
type ChangeRequest struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	AdmissionID uuid.UUID  `json:"admission_id" db:"admission_id"`
	Type        Type       `json:"type" db:"type"`
	Status      Status     `json:"status" db:"status"`
	Payload     Payload    `json:"payload" db:"payload"`
	Note        string     `json:"note" db:"note"`
	RequestedBy string     `json:"requested_by" db:"requested_by"`
	ResolvedBy  *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
