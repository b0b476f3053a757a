// Package municipal exposes read-only municipal placement policy:
// guarantee deadlines and weekly-hours ceilings.
package municipal

import (
	"context"
	"time"
)

// Policy is the configuration surface consumed by the waitlist
// prioritizer and the dual placement coordinator. Implementations are
// read-only; the engine never mutates municipal configuration.
type Policy interface {
	// GuaranteeDeadline returns the statutory guarantee cutoff for the
	// given queue-entry time: children queued on or before the cutoff hold
	// a placement guarantee.
	GuaranteeDeadline(ctx context.Context) (time.Time, error)
	// MaxWeeklyHours returns the ceiling for a child's combined weekly
	// scheduled hours across all placements.
	MaxWeeklyHours(ctx context.Context) (float64, error)
}

// StaticPolicy serves fixed values from configuration.
type StaticPolicy struct {
	Deadline    time.Time
	WeeklyHours float64
}

// GuaranteeDeadline returns the configured cutoff.
func (p StaticPolicy) GuaranteeDeadline(ctx context.Context) (time.Time, error) {
	return p.Deadline, nil
}

// MaxWeeklyHours returns the configured ceiling.
func (p StaticPolicy) MaxWeeklyHours(ctx context.Context) (float64, error) {
	return p.WeeklyHours, nil
}
