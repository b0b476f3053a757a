package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/department"
	"github.com/oslo-kindergarten/placement-engine/internal/municipal"
	"github.com/oslo-kindergarten/placement-engine/internal/notify"
	"github.com/oslo-kindergarten/placement-engine/internal/registry"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// TransitionIdempotencyModule scopes transition idempotency keys in the
// shared store. Bulk actions consult the same scope when they decide
// whether a retried target already committed.
const TransitionIdempotencyModule = "admission:transition"

// Departments is the read-only department lookup the service needs.
type Departments interface {
	GetByID(ctx context.Context, id uuid.UUID) (department.Department, error)
}

// Service validates and applies admission lifecycle commands. Transitions
// for the same admission id are mutually exclusive; different admissions
// proceed in parallel.
type Service struct {
	repo        Repository
	ledger      *capacity.Ledger
	departments Departments
	children    registry.Client
	policy      municipal.Policy
	idempotency shared.IdempotencyStore
	notifier    notify.Dispatcher
	locks       *shared.KeyedMutex
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the service.
func NewService(
	repo Repository,
	ledger *capacity.Ledger,
	departments Departments,
	children registry.Client,
	policy municipal.Policy,
	idempotency shared.IdempotencyStore,
	notifier notify.Dispatcher,
	logger *slog.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.NopDispatcher{}
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		departments: departments,
		children:    children,
		policy:      policy,
		idempotency: idempotency,
		notifier:    notifier,
		locks:       shared.NewKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams describes a new admission.
type CreateParams struct {
	ChildID        uuid.UUID
	DepartmentID   uuid.UUID
	StartDate      time.Time
	RateCategory   string
	Timetable      Timetable
	Queue          bool
	Actor          string
	IdempotencyKey string
}

// Create registers an admission as DRAFT, or directly QUEUED when Queue
// is set. Creation never consumes capacity; seats are claimed on the
// edge into ACTIVE/FUTURE.
func (s *Service) Create(ctx context.Context, params CreateParams) (Admission, error) {
	if err := params.Timetable.Validate(); err != nil {
		return Admission{}, err
	}
	child, err := s.children.GetChild(ctx, params.ChildID)
	if err != nil {
		return Admission{}, err
	}
	dept, err := s.departments.GetByID(ctx, params.DepartmentID)
	if err != nil {
		return Admission{}, err
	}
	if age := child.AgeAt(params.StartDate); !dept.AcceptsAge(age) {
		return Admission{}, fmt.Errorf("child age %d outside department range %d-%d: %w",
			age, dept.AgeMin, dept.AgeMax, shared.ErrValidation)
	}

	if params.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, "admission:create"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Admission{}, fmt.Errorf("create admission: %w", err)
			}
			return Admission{}, err
		}
	}

	now := s.now()
	a := Admission{
		ID:           uuid.New(),
		ChildID:      params.ChildID,
		DepartmentID: params.DepartmentID,
		Status:       StatusDraft,
		StartDate:    params.StartDate,
		RateCategory: params.RateCategory,
		Timetable:    params.Timetable,
		Version:      1,
		CreatedBy:    params.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if params.Queue {
		a.Status = StatusQueued
		queuedAt := now
		a.QueuedAt = &queuedAt
		deadline, err := s.policy.GuaranteeDeadline(ctx)
		if err != nil {
			return Admission{}, fmt.Errorf("guarantee deadline: %w", err)
		}
		a.Guarantee = !queuedAt.After(deadline)
	}

	event := Event{
		AdmissionID: a.ID,
		FromStatus:  a.Status,
		ToStatus:    a.Status,
		Actor:       params.Actor,
		Reason:      "admission created",
		At:          now,
	}
	if err := s.repo.Create(ctx, a, event); err != nil {
		if params.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, params.IdempotencyKey)
		}
		return Admission{}, err
	}
	return a, nil
}

// TransitionParams describes a status transition command.
type TransitionParams struct {
	AdmissionID    uuid.UUID
	Target         Status
	Actor          string
	Reason         string
	EndDate        *time.Time
	IdempotencyKey string

	// ReservationToken consumes one seat from an existing aggregate
	// reservation instead of placing a fresh one. Used by bulk actions
	// that pre-reserve their whole capacity window.
	ReservationToken *uuid.UUID
}

// Transition applies one edge of the transition table. Accepted
// transitions reserve/release capacity as the edge requires, append
// exactly one event, and are idempotent under retry with the same key.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Admission, error) {
	if !params.Target.IsValid() {
		return Admission{}, fmt.Errorf("unknown status %q: %w", params.Target, shared.ErrValidation)
	}

	key := shared.AdmissionLockKey(params.AdmissionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if params.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, TransitionIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// Duplicate command: the transition already happened.
				// Return the current state, do not append a second event.
				return s.repo.GetByID(ctx, params.AdmissionID)
			}
			return Admission{}, err
		}
	}

	a, err := s.apply(ctx, params)
	if err != nil {
		if params.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, params.IdempotencyKey)
		}
		return Admission{}, err
	}
	return a, nil
}

func (s *Service) apply(ctx context.Context, params TransitionParams) (Admission, error) {
	a, err := s.repo.GetByID(ctx, params.AdmissionID)
	if err != nil {
		return Admission{}, err
	}

	from := a.Status
	to := params.Target
	if !CanTransition(from, to) {
		return Admission{}, fmt.Errorf("admission %s: %s -> %s: %w", a.ID, from, to, shared.ErrInvalidStateTransition)
	}

	delta := CapacityDelta(from, to)
	var reservation *capacity.Reservation
	if delta > 0 {
		if params.ReservationToken != nil {
			if err := s.ledger.CommitPortion(ctx, *params.ReservationToken, delta); err != nil {
				return Admission{}, err
			}
		} else {
			res, err := s.ledger.Reserve(ctx, a.DepartmentID, delta)
			if err != nil {
				return Admission{}, err
			}
			reservation = &res
		}
	}

	event := Event{
		AdmissionID: a.ID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       params.Actor,
		Reason:      params.Reason,
		At:          s.now(),
	}
	endDate := params.EndDate
	if endDate == nil && (to == StatusTerminated || to == StatusHistorical) {
		now := s.now()
		endDate = &now
	}
	if err := s.repo.UpdateStatus(ctx, a.ID, a.Version, to, endDate, event); err != nil {
		if reservation != nil {
			if relErr := s.ledger.Release(ctx, reservation.Token); relErr != nil && s.logger != nil {
				s.logger.Error("release reservation after failed transition", slog.Any("error", relErr))
			}
		}
		return Admission{}, err
	}
	if reservation != nil {
		if err := s.ledger.Commit(ctx, reservation.Token); err != nil && s.logger != nil {
			s.logger.Error("commit reservation", slog.Any("error", err))
		}
	}
	if delta < 0 {
		// The seat frees through the derived count; only the cached
		// report needs refreshing.
		s.ledger.InvalidateReport(ctx, a.DepartmentID)
	}

	s.notifyTransition(ctx, a, from, to)

	return s.repo.GetByID(ctx, a.ID)
}

func (s *Service) notifyTransition(ctx context.Context, a Admission, from, to Status) {
	switch {
	case to == StatusTerminated:
		s.notifier.Notify(ctx, notify.RoleGuardian, notify.TemplateTerminated, map[string]any{
			"admission_id":  a.ID.String(),
			"department_id": a.DepartmentID.String(),
		})
	case from == StatusQueued && (to == StatusActive || to == StatusFuture):
		s.notifier.Notify(ctx, notify.RoleGuardian, notify.TemplateWaitlistPromotion, map[string]any{
			"admission_id":  a.ID.String(),
			"department_id": a.DepartmentID.String(),
		})
	}
}

// UpdateRateCategory changes the billing rate category, recording one
// event. The admission keeps its status.
func (s *Service) UpdateRateCategory(ctx context.Context, id uuid.UUID, rate, actor, reason string) (Admission, error) {
	if rate == "" {
		return Admission{}, fmt.Errorf("rate category required: %w", shared.ErrValidation)
	}

	key := shared.AdmissionLockKey(id)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Admission{}, err
	}
	if a.Status.IsTerminal() {
		return Admission{}, fmt.Errorf("admission %s is %s: %w", id, a.Status, shared.ErrInvalidStateTransition)
	}
	event := Event{
		AdmissionID: a.ID,
		FromStatus:  a.Status,
		ToStatus:    a.Status,
		Actor:       actor,
		Reason:      fmt.Sprintf("rate category %s -> %s: %s", a.RateCategory, rate, reason),
		At:          s.now(),
	}
	if err := s.repo.UpdateRateCategory(ctx, a.ID, a.Version, rate, event); err != nil {
		return Admission{}, err
	}
	return s.repo.GetByID(ctx, a.ID)
}

// PromoteFutureDue moves FUTURE admissions whose start date arrived to
// ACTIVE. Called by the scheduled re-evaluation job. The edge does not
// change enrollment, both states consume a seat.
func (s *Service) PromoteFutureDue(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.repo.ListFutureDue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, a := range due {
		if ctx.Err() != nil {
			return promoted, ctx.Err()
		}
		_, err := s.Transition(ctx, TransitionParams{
			AdmissionID:    a.ID,
			Target:         StatusActive,
			Actor:          "system",
			Reason:         "start date reached",
			IdempotencyKey: fmt.Sprintf("future-promote:%s:%s", a.ID, asOf.Format("2006-01-02")),
		})
		if err != nil {
			if s.logger != nil {
				s.logger.Error("promote future admission", slog.String("admission_id", a.ID.String()), slog.Any("error", err))
			}
			continue
		}
		promoted++
	}
	return promoted, nil
}

// GetByID returns one admission.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Admission, error) {
	return s.repo.GetByID(ctx, id)
}

// Events returns the audit trail of an admission.
func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]Event, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

// List returns admissions matching the filter. When sortByChildName is
// set the page is ordered with Norwegian collation, the portal's display
// order for child names.
func (s *Service) List(ctx context.Context, filter ListFilter, sortByChildName bool) ([]Admission, shared.Pagination, error) {
	admissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if sortByChildName {
		// x/text ships no Norwegian tailoring; the Danish tables carry
		// the same alphabet, with æ, ø, å ordered after z.
		c := collate.New(language.Danish)
		for i := 1; i < len(admissions); i++ {
			for j := i; j > 0 && c.CompareString(admissions[j].ChildName, admissions[j-1].ChildName) < 0; j-- {
				admissions[j], admissions[j-1] = admissions[j-1], admissions[j]
			}
		}
	}
	page := 1
	perPage := filter.Limit
	if perPage > 0 {
		page = filter.Offset/perPage + 1
	}
	return admissions, shared.NewPagination(page, perPage, total), nil
}
