package changerequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/notify"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Admissions is the state machine surface the workflow drives on
// approval.
type Admissions interface {
	GetByID(ctx context.Context, id uuid.UUID) (admission.Admission, error)
	Transition(ctx context.Context, params admission.TransitionParams) (admission.Admission, error)
	UpdateRateCategory(ctx context.Context, id uuid.UUID, rate, actor, reason string) (admission.Admission, error)
	Create(ctx context.Context, params admission.CreateParams) (admission.Admission, error)
}

// Repository persists change requests.
type Repository interface {
	Create(ctx context.Context, cr ChangeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (ChangeRequest, error)
	List(ctx context.Context, status *Status) ([]ChangeRequest, error)
	// Resolve moves PENDING to the given status; zero rows moved means
	// the request was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, to Status, resolvedBy string, at time.Time) error
	// MarkImplemented moves APPROVED to IMPLEMENTED.
	MarkImplemented(ctx context.Context, id uuid.UUID) error
}

// Workflow records pending requests and, on approval, re-enters the
// admission state machine. Resolving an already-resolved request fails
// rather than silently no-op.
type Workflow struct {
	repo        Repository
	admissions  Admissions
	idempotency shared.IdempotencyStore
	notifier    notify.Dispatcher
	locks       *shared.KeyedMutex
	logger      *slog.Logger
	now         func() time.Time
}

// SubmitIdempotencyModule namespaces submit idempotency keys in the
// shared store.
const SubmitIdempotencyModule = "changerequest:submit"

// NewWorkflow constructs the workflow.
func NewWorkflow(repo Repository, admissions Admissions, idempotency shared.IdempotencyStore, notifier notify.Dispatcher, logger *slog.Logger) *Workflow {
	if notifier == nil {
		notifier = notify.NopDispatcher{}
	}
	return &Workflow{
		repo:        repo,
		admissions:  admissions,
		idempotency: idempotency,
		notifier:    notifier,
		locks:       shared.NewKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (w *Workflow) SetClock(now func() time.Time) {
	w.now = now
}

// SubmitParams describes a new request.
type SubmitParams struct {
	AdmissionID    uuid.UUID
	Type           Type
	Payload        Payload
	Note           string
	RequestedBy    string
	IdempotencyKey string
}

// Submit records a pending request after checking the admission can
// still change.
func (w *Workflow) Submit(ctx context.Context, params SubmitParams) (ChangeRequest, error) {
	if !params.Type.IsValid() {
		return ChangeRequest{}, fmt.Errorf("unknown change type %q: %w", params.Type, shared.ErrValidation)
	}
	a, err := w.admissions.GetByID(ctx, params.AdmissionID)
	if err != nil {
		return ChangeRequest{}, err
	}
	if a.Status.IsTerminal() {
		return ChangeRequest{}, fmt.Errorf("admission %s is %s: %w", a.ID, a.Status, shared.ErrValidation)
	}
	switch params.Type {
	case TypeDepartmentChange:
		if params.Payload.TargetDepartmentID == nil {
			return ChangeRequest{}, fmt.Errorf("target department required: %w", shared.ErrValidation)
		}
	case TypeRateCategory:
		if params.Payload.RateCategory == "" {
			return ChangeRequest{}, fmt.Errorf("rate category required: %w", shared.ErrValidation)
		}
	}

	if params.IdempotencyKey != "" {
		if err := w.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, SubmitIdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ChangeRequest{}, fmt.Errorf("submit change request: %w", err)
			}
			return ChangeRequest{}, err
		}
	}

	now := w.now()
	cr := ChangeRequest{
		ID:          uuid.New(),
		AdmissionID: params.AdmissionID,
		Type:        params.Type,
		Status:      StatusPending,
		Payload:     params.Payload,
		Note:        params.Note,
		RequestedBy: params.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.repo.Create(ctx, cr); err != nil {
		if params.IdempotencyKey != "" {
			_ = w.idempotency.Delete(ctx, params.IdempotencyKey)
		}
		return ChangeRequest{}, err
	}
	return cr, nil
}

// Resolve applies the approver's decision exactly once. Rejection has no
// side effect beyond recording the decision; approval re-enters the
// state machine. Side effects run before the resolution is persisted, so
// a failed approval leaves the request PENDING and retryable instead of
// stranding it APPROVED with nothing applied.
func (w *Workflow) Resolve(ctx context.Context, requestID uuid.UUID, decision Decision, approver, note string) (ChangeRequest, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return ChangeRequest{}, fmt.Errorf("unknown decision %q: %w", decision, shared.ErrValidation)
	}

	key := "changerequest:" + requestID.String()
	w.locks.Lock(key)
	defer w.locks.Unlock(key)

	cr, err := w.repo.GetByID(ctx, requestID)
	if err != nil {
		return ChangeRequest{}, err
	}
	if cr.Status != StatusPending {
		return ChangeRequest{}, fmt.Errorf("request %s is %s: %w", cr.ID, cr.Status, shared.ErrAlreadyResolved)
	}

	to := StatusApproved
	if decision == DecisionReject {
		to = StatusRejected
	}
	if decision == DecisionApprove {
		// The admission-side commands are idempotency-keyed on the
		// request id: a crash between side effect and resolution replays
		// cleanly on retry.
		if err := w.implement(ctx, &cr, approver, note); err != nil {
			return ChangeRequest{}, err
		}
	}
	if err := w.repo.Resolve(ctx, cr.ID, to, approver, w.now()); err != nil {
		return ChangeRequest{}, err
	}
	if decision == DecisionApprove && cr.Type != TypeTermination {
		// Rate and department changes take full effect at approval;
		// termination stays APPROVED until its end date passes.
		if err := w.repo.MarkImplemented(ctx, cr.ID); err != nil {
			return ChangeRequest{}, err
		}
	}

	w.notifier.Notify(ctx, notify.RoleCaseworker, notify.TemplateChangeResolved, map[string]any{
		"request_id": cr.ID.String(),
		"decision":   string(decision),
	})
	return w.repo.GetByID(ctx, cr.ID)
}

func (w *Workflow) implement(ctx context.Context, cr *ChangeRequest, approver, note string) error {
	reason := note
	if reason == "" {
		reason = fmt.Sprintf("change request %s approved", cr.ID)
	}
	idemKey := fmt.Sprintf("changerequest:%s", cr.ID)

	switch cr.Type {
	case TypeTermination:
		_, err := w.admissions.Transition(ctx, admission.TransitionParams{
			AdmissionID:    cr.AdmissionID,
			Target:         admission.StatusTerminated,
			Actor:          approver,
			Reason:         reason,
			EndDate:        cr.Payload.TerminationDate,
			IdempotencyKey: idemKey,
		})
		return err

	case TypeRateCategory:
		_, err := w.admissions.UpdateRateCategory(ctx, cr.AdmissionID, cr.Payload.RateCategory, approver, reason)
		return err

	case TypeDepartmentChange:
		old, err := w.admissions.GetByID(ctx, cr.AdmissionID)
		if err != nil {
			return err
		}
		if _, err := w.admissions.Transition(ctx, admission.TransitionParams{
			AdmissionID:    cr.AdmissionID,
			Target:         admission.StatusTerminated,
			Actor:          approver,
			Reason:         reason,
			IdempotencyKey: idemKey,
		}); err != nil {
			return err
		}
		// The replacement joins the target department's queue so the
		// normal promotion path applies its capacity gate.
		_, err = w.admissions.Create(ctx, admission.CreateParams{
			ChildID:        old.ChildID,
			DepartmentID:   *cr.Payload.TargetDepartmentID,
			StartDate:      old.StartDate,
			RateCategory:   old.RateCategory,
			Timetable:      old.Timetable,
			Queue:          true,
			Actor:          approver,
			IdempotencyKey: idemKey + ":enqueue",
		})
		return err

	default:
		return fmt.Errorf("unknown change type %q: %w", cr.Type, shared.ErrValidation)
	}
}

// GetByID returns one request.
func (w *Workflow) GetByID(ctx context.Context, id uuid.UUID) (ChangeRequest, error) {
	return w.repo.GetByID(ctx, id)
}

// List returns requests, optionally filtered by status.
func (w *Workflow) List(ctx context.Context, status *Status) ([]ChangeRequest, error) {
	return w.repo.List(ctx, status)
}
