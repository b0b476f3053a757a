// Package bulk applies one action to a set of admissions with a declared
// atomicity policy per action type.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/notify"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// ActionType enumerates the bulk actions.
type ActionType string

const (
	// ActionEnroll moves queued admissions to ACTIVE.
	ActionEnroll ActionType = "ENROLL"
	// ActionTerminate ends admissions.
	ActionTerminate ActionType = "TERMINATE"
	// ActionDelete soft-deletes admissions.
	ActionDelete ActionType = "DELETE"
	// ActionChangeRateCategory rewrites the billing rate category.
	ActionChangeRateCategory ActionType = "CHANGE_RATE_CATEGORY"
	// ActionSendNotice dispatches a notification per admission.
	ActionSendNotice ActionType = "SEND_NOTICE"
)

// Atomicity is the declared failure policy of an action type.
type Atomicity string

const (
	// AllOrNothing commits no target when any target fails validation.
	AllOrNothing Atomicity = "ALL_OR_NOTHING"
	// BestEffort commits successes as they occur and reports failures.
	BestEffort Atomicity = "BEST_EFFORT"
)

var policies = map[ActionType]Atomicity{
	ActionEnroll:             AllOrNothing,
	ActionTerminate:          AllOrNothing,
	ActionDelete:             AllOrNothing,
	ActionChangeRateCategory: BestEffort,
	ActionSendNotice:         BestEffort,
}

var targetStatus = map[ActionType]admission.Status{
	ActionEnroll:    admission.StatusActive,
	ActionTerminate: admission.StatusTerminated,
	ActionDelete:    admission.StatusDeleted,
}

// PolicyOf returns the declared atomicity of an action type.
func PolicyOf(action ActionType) (Atomicity, bool) {
	p, ok := policies[action]
	return p, ok
}

// Parameters carries the optional per-action inputs.
type Parameters struct {
	Reason       string     `json:"reason,omitempty"`
	RateCategory string     `json:"rate_category,omitempty"`
	TemplateID   string     `json:"template_id,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// Request is an ephemeral bulk command. BulkID scopes the per-target
// idempotency keys; callers reuse the same id to retry an interrupted
// batch safely.
type Request struct {
	BulkID     uuid.UUID
	ActionType ActionType
	TargetIDs  []uuid.UUID
	Parameters Parameters
	Actor      string
}

// ItemFailure reports one failed target.
type ItemFailure struct {
	ID        uuid.UUID        `json:"id"`
	ErrorKind shared.ErrorKind `json:"error_kind"`
	Message   string           `json:"message,omitempty"`
}

// Result is the structured outcome of a bulk execution. A best-effort
// action with per-item failures is not a hard failure of the call.
type Result struct {
	BulkID     uuid.UUID     `json:"bulk_id"`
	ActionType ActionType    `json:"action_type"`
	Atomicity  Atomicity     `json:"atomicity"`
	Succeeded  []uuid.UUID   `json:"succeeded"`
	Failed     []ItemFailure `json:"failed"`
}

// Admissions is the single-item surface the orchestrator fans out over.
type Admissions interface {
	GetByID(ctx context.Context, id uuid.UUID) (admission.Admission, error)
	Transition(ctx context.Context, params admission.TransitionParams) (admission.Admission, error)
	UpdateRateCategory(ctx context.Context, id uuid.UUID, rate, actor, reason string) (admission.Admission, error)
}

// Orchestrator executes bulk actions. It acquires no global lock; two
// unrelated bulk jobs serialize only through the per-department and
// per-admission critical sections of the underlying primitives.
type Orchestrator struct {
	admissions  Admissions
	ledger      *capacity.Ledger
	idempotency shared.IdempotencyStore
	notifier    notify.Dispatcher
	logger      *slog.Logger

	// noticeConcurrency bounds the send-notice fan-out.
	noticeConcurrency int
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(admissions Admissions, ledger *capacity.Ledger, idempotency shared.IdempotencyStore, notifier notify.Dispatcher, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = notify.NopDispatcher{}
	}
	return &Orchestrator{
		admissions:        admissions,
		ledger:            ledger,
		idempotency:       idempotency,
		notifier:          notifier,
		logger:            logger,
		noticeConcurrency: 4,
	}
}

// Execute runs the action against every target under its declared
// atomicity policy.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	policy, ok := policies[req.ActionType]
	if !ok {
		return Result{}, fmt.Errorf("unknown action type %q: %w", req.ActionType, shared.ErrValidation)
	}
	if len(req.TargetIDs) == 0 {
		return Result{}, fmt.Errorf("no targets: %w", shared.ErrValidation)
	}
	if req.BulkID == uuid.Nil {
		req.BulkID = uuid.New()
	}
	result := Result{BulkID: req.BulkID, ActionType: req.ActionType, Atomicity: policy}

	switch req.ActionType {
	case ActionEnroll, ActionTerminate, ActionDelete:
		return o.executeAtomic(ctx, req, result)
	case ActionChangeRateCategory:
		return o.executeRateChanges(ctx, req, result), nil
	case ActionSendNotice:
		return o.executeNotices(ctx, req, result), nil
	default:
		return Result{}, fmt.Errorf("unknown action type %q: %w", req.ActionType, shared.ErrValidation)
	}
}

// executeAtomic pre-validates every target and reserves the whole
// capacity window before committing anything. A single invalid target
// aborts the batch with the originating error kind; no target commits.
func (o *Orchestrator) executeAtomic(ctx context.Context, req Request, result Result) (Result, error) {
	to := targetStatus[req.ActionType]

	deltas := make(map[uuid.UUID]int)
	loaded := make(map[uuid.UUID]admission.Admission, len(req.TargetIDs))
	committed := make(map[uuid.UUID]bool)
	for _, id := range req.TargetIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		a, err := o.admissions.GetByID(ctx, id)
		if err != nil {
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindOf(err), Message: err.Error()})
			return result, fmt.Errorf("bulk %s: target %s: %w", req.ActionType, id, err)
		}
		if !admission.CanTransition(a.Status, to) {
			// A retried batch finds targets an earlier attempt already
			// moved; their per-target idempotency key tells them apart
			// from targets that were never part of this batch.
			if a.Status == to && o.alreadyCommitted(ctx, req.BulkID, id) {
				committed[id] = true
				continue
			}
			err := fmt.Errorf("admission %s: %s -> %s: %w", id, a.Status, to, shared.ErrInvalidStateTransition)
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindOf(err), Message: err.Error()})
			return result, fmt.Errorf("bulk %s: %w", req.ActionType, err)
		}
		loaded[id] = a
		if d := admission.CapacityDelta(a.Status, to); d > 0 {
			deltas[a.DepartmentID] += d
		}
	}

	// The aggregate reservations are the batch's single capacity window:
	// either every seat is held here or nothing commits.
	reservations := make(map[uuid.UUID]uuid.UUID, len(deltas))
	releaseAll := func() {
		for _, token := range reservations {
			if err := o.ledger.Release(ctx, token); err != nil && !errors.Is(err, shared.ErrNotFound) && o.logger != nil {
				o.logger.Error("release bulk reservation", slog.Any("error", err))
			}
		}
	}
	for departmentID, count := range deltas {
		res, err := o.ledger.Reserve(ctx, departmentID, count)
		if err != nil {
			releaseAll()
			result.Failed = append(result.Failed, ItemFailure{ID: departmentID, ErrorKind: shared.KindOf(err), Message: err.Error()})
			return result, fmt.Errorf("bulk %s: %w", req.ActionType, err)
		}
		reservations[departmentID] = res.Token
	}
	defer releaseAll()

	for _, id := range req.TargetIDs {
		if committed[id] {
			result.Succeeded = append(result.Succeeded, id)
			continue
		}
		a := loaded[id]
		params := admission.TransitionParams{
			AdmissionID:    id,
			Target:         to,
			Actor:          req.Actor,
			Reason:         req.Parameters.Reason,
			EndDate:        req.Parameters.EndDate,
			IdempotencyKey: fmt.Sprintf("%s:%s", req.BulkID, id),
		}
		if admission.CapacityDelta(a.Status, to) > 0 {
			token := reservations[a.DepartmentID]
			params.ReservationToken = &token
		}
		if _, err := o.admissions.Transition(ctx, params); err != nil {
			// Pre-validation makes this a race, not a policy violation:
			// retrying with the same bulk id skips committed targets via
			// their idempotency keys and finishes the batch.
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindOf(err), Message: err.Error()})
			return result, fmt.Errorf("bulk %s: target %s: %w", req.ActionType, id, err)
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// alreadyCommitted reports whether an earlier attempt of the same batch
// transitioned the target. The store only exposes claim semantics, so the
// check claims the key and hands it back when it was free.
func (o *Orchestrator) alreadyCommitted(ctx context.Context, bulkID, targetID uuid.UUID) bool {
	key := fmt.Sprintf("%s:%s", bulkID, targetID)
	err := o.idempotency.CheckAndInsert(ctx, key, admission.TransitionIdempotencyModule)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return true
	}
	if err == nil {
		_ = o.idempotency.Delete(ctx, key)
	}
	return false
}

// executeRateChanges applies rate category updates best-effort: one
// failure never blocks the rest. Cancellation between iterations leaves
// already-committed items committed.
func (o *Orchestrator) executeRateChanges(ctx context.Context, req Request, result Result) Result {
	reason := req.Parameters.Reason
	for _, id := range req.TargetIDs {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindInternal, Message: "cancelled"})
			continue
		}
		if _, err := o.admissions.UpdateRateCategory(ctx, id, req.Parameters.RateCategory, req.Actor, reason); err != nil {
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindOf(err), Message: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// executeNotices dispatches one notification per admission over a small
// worker pool. Dispatch is fire-and-forget; only missing admissions fail.
func (o *Orchestrator) executeNotices(ctx context.Context, req Request, result Result) Result {
	templateID := req.Parameters.TemplateID
	if templateID == "" {
		templateID = notify.TemplateBulkNotice
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.noticeConcurrency)
	for _, id := range req.TargetIDs {
		if err := gctx.Err(); err != nil {
			mu.Lock()
			result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindInternal, Message: "cancelled"})
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			a, err := o.admissions.GetByID(gctx, id)
			if err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, ItemFailure{ID: id, ErrorKind: shared.KindOf(err), Message: err.Error()})
				mu.Unlock()
				return nil
			}
			o.notifier.Notify(gctx, notify.RoleGuardian, templateID, map[string]any{
				"admission_id":  a.ID.String(),
				"department_id": a.DepartmentID.String(),
				"reason":        req.Parameters.Reason,
			})
			mu.Lock()
			result.Succeeded = append(result.Succeeded, id)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}
