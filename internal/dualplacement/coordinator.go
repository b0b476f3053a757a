package dualplacement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/municipal"
	"github.com/oslo-kindergarten/placement-engine/internal/registry"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Admissions is the slice of the admission repository the coordinator
// drives: reading the child's placements, rewriting the primary schedule
// and creating the linked secondary admission.
type Admissions interface {
	GetByID(ctx context.Context, id uuid.UUID) (admission.Admission, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]admission.Admission, error)
	Create(ctx context.Context, a admission.Admission, event admission.Event) error
	UpdateTimetable(ctx context.Context, id uuid.UUID, expectedVersion int64, timetable admission.Timetable, event admission.Event) error
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, to admission.Status, endDate *time.Time, event admission.Event) error
}

// Repository persists dual placement links.
type Repository interface {
	Create(ctx context.Context, dp DualPlacement) error
	GetByAdmission(ctx context.Context, admissionID uuid.UUID) (DualPlacement, error)
}

// Params describes a dual placement setup command.
type Params struct {
	ChildID               uuid.UUID
	PrimaryAdmissionID    uuid.UUID
	SecondaryDepartmentID uuid.UUID
	StartDate             time.Time
	RateCategory          string
	PrimarySchedule       admission.Timetable
	SecondarySchedule     admission.Timetable
	Actor                 string
	IdempotencyKey        string
}

// SetupIdempotencyModule namespaces setup idempotency keys in the
// shared store.
const SetupIdempotencyModule = "dualplacement:setup"

// Coordinator validates and records split placements. The overlap and
// weekly-hours checks run before any capacity reservation, so capacity
// is never reserved for a setup that will be rolled back.
type Coordinator struct {
	admissions  Admissions
	repo        Repository
	ledger      *capacity.Ledger
	children    registry.Client
	policy      municipal.Policy
	idempotency shared.IdempotencyStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(
	admissions Admissions,
	repo Repository,
	ledger *capacity.Ledger,
	children registry.Client,
	policy municipal.Policy,
	idempotency shared.IdempotencyStore,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		admissions:  admissions,
		repo:        repo,
		ledger:      ledger,
		children:    children,
		policy:      policy,
		idempotency: idempotency,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Setup creates the secondary admission and links the pair. The
// secondary department's seat is reserved through the ledger exactly as
// for a normal admission.
func (c *Coordinator) Setup(ctx context.Context, params Params) (DualPlacement, error) {
	if _, err := c.children.GetChild(ctx, params.ChildID); err != nil {
		return DualPlacement{}, err
	}

	primary, err := c.admissions.GetByID(ctx, params.PrimaryAdmissionID)
	if err != nil {
		return DualPlacement{}, err
	}
	if primary.ChildID != params.ChildID {
		return DualPlacement{}, fmt.Errorf("admission %s belongs to another child: %w",
			primary.ID, shared.ErrValidation)
	}
	if !primary.Status.ConsumesCapacity() {
		return DualPlacement{}, fmt.Errorf("primary admission is %s, need ACTIVE or FUTURE: %w",
			primary.Status, shared.ErrValidation)
	}
	if primary.DepartmentID == params.SecondaryDepartmentID {
		return DualPlacement{}, fmt.Errorf("secondary department equals primary: %w", shared.ErrValidation)
	}

	existing, err := c.admissions.ListByChild(ctx, params.ChildID)
	if err != nil {
		return DualPlacement{}, err
	}
	for _, a := range existing {
		if a.ID != primary.ID && a.Status.ConsumesCapacity() {
			return DualPlacement{}, fmt.Errorf("child already holds admission %s in department %s: %w",
				a.ID, a.DepartmentID, shared.ErrValidation)
		}
	}

	if err := params.PrimarySchedule.Validate(); err != nil {
		return DualPlacement{}, err
	}
	if err := params.SecondarySchedule.Validate(); err != nil {
		return DualPlacement{}, err
	}
	if params.PrimarySchedule.Overlaps(params.SecondarySchedule) {
		return DualPlacement{}, fmt.Errorf("split schedules share a time window: %w", shared.ErrScheduleConflict)
	}
	ceiling, err := c.policy.MaxWeeklyHours(ctx)
	if err != nil {
		return DualPlacement{}, fmt.Errorf("weekly hours ceiling: %w", err)
	}
	combined := params.PrimarySchedule.WeeklyHours() + params.SecondarySchedule.WeeklyHours()
	if combined > ceiling {
		return DualPlacement{}, fmt.Errorf("combined %.1f weekly hours exceeds ceiling %.1f: %w",
			combined, ceiling, shared.ErrValidation)
	}

	if params.IdempotencyKey != "" {
		if err := c.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, SetupIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// A retried request replays the link established by the
				// first attempt.
				return c.repo.GetByAdmission(ctx, params.PrimaryAdmissionID)
			}
			return DualPlacement{}, err
		}
	}

	reservation, err := c.ledger.Reserve(ctx, params.SecondaryDepartmentID, 1)
	if err != nil {
		c.releaseKey(ctx, params.IdempotencyKey)
		return DualPlacement{}, err
	}
	dp, err := c.record(ctx, params, primary)
	if err != nil {
		if relErr := c.ledger.Release(ctx, reservation.Token); relErr != nil && c.logger != nil {
			c.logger.Error("release reservation after failed dual placement", slog.Any("error", relErr))
		}
		c.releaseKey(ctx, params.IdempotencyKey)
		return DualPlacement{}, err
	}
	if err := c.ledger.Commit(ctx, reservation.Token); err != nil && c.logger != nil {
		c.logger.Error("commit reservation", slog.Any("error", err))
	}
	return dp, nil
}

// releaseKey frees the idempotency key after a failed setup so the
// caller can retry with the same key.
func (c *Coordinator) releaseKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.idempotency.Delete(ctx, key); err != nil && c.logger != nil {
		c.logger.Error("release idempotency key", slog.Any("error", err))
	}
}

func (c *Coordinator) record(ctx context.Context, params Params, primary admission.Admission) (DualPlacement, error) {
	now := c.now()

	status := admission.StatusActive
	if params.StartDate.After(now) {
		status = admission.StatusFuture
	}
	secondary := admission.Admission{
		ID:           uuid.New(),
		ChildID:      params.ChildID,
		DepartmentID: params.SecondaryDepartmentID,
		Status:       status,
		StartDate:    params.StartDate,
		RateCategory: params.RateCategory,
		Timetable:    params.SecondarySchedule,
		Version:      1,
		CreatedBy:    params.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.admissions.Create(ctx, secondary, admission.Event{
		AdmissionID: secondary.ID,
		FromStatus:  status,
		ToStatus:    status,
		Actor:       params.Actor,
		Reason:      fmt.Sprintf("dual placement with admission %s", primary.ID),
		At:          now,
	}); err != nil {
		return DualPlacement{}, err
	}

	if err := c.admissions.UpdateTimetable(ctx, primary.ID, primary.Version, params.PrimarySchedule, admission.Event{
		AdmissionID: primary.ID,
		FromStatus:  primary.Status,
		ToStatus:    primary.Status,
		Actor:       params.Actor,
		Reason:      fmt.Sprintf("dual placement split with admission %s", secondary.ID),
		At:          now,
	}); err != nil {
		c.discardSecondary(ctx, secondary, params.Actor)
		return DualPlacement{}, err
	}

	dp := DualPlacement{
		ID:                   uuid.New(),
		ChildID:              params.ChildID,
		PrimaryAdmissionID:   primary.ID,
		SecondaryAdmissionID: secondary.ID,
		CreatedBy:            params.Actor,
		CreatedAt:            now,
	}
	if err := c.repo.Create(ctx, dp); err != nil {
		c.discardSecondary(ctx, secondary, params.Actor)
		return DualPlacement{}, err
	}
	return dp, nil
}

// discardSecondary soft-deletes a secondary admission created by a setup
// that failed partway, so no unlinked admission keeps holding a seat.
func (c *Coordinator) discardSecondary(ctx context.Context, secondary admission.Admission, actor string) {
	err := c.admissions.UpdateStatus(ctx, secondary.ID, secondary.Version, admission.StatusDeleted, nil, admission.Event{
		AdmissionID: secondary.ID,
		FromStatus:  secondary.Status,
		ToStatus:    admission.StatusDeleted,
		Actor:       actor,
		Reason:      "dual placement setup rolled back",
		At:          c.now(),
	})
	if err != nil && c.logger != nil {
		c.logger.Error("discard secondary admission after failed dual placement",
			slog.String("admission_id", secondary.ID.String()), slog.Any("error", err))
	}
}
