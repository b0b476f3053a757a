package changerequest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
)

// SubmitRequest is the payload for POST /api/change-requests.
type SubmitRequest struct {
	AdmissionID uuid.UUID `json:"admission_id" validate:"required"`
	Type        Type      `json:"type" validate:"required"`
	Payload     Payload   `json:"payload"`
	Note        string    `json:"note" validate:"max=500"`
	RequestedBy string    `json:"requested_by" validate:"required,max=80"`
}

// ResolveRequest is the payload for POST /api/change-requests/{id}/resolve.
type ResolveRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Approver string   `json:"approver" validate:"required,max=80"`
	Note     string   `json:"note" validate:"max=500"`
}

// Handler exposes the change request workflow.
type Handler struct {
	logger   *slog.Logger
	workflow *Workflow
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, workflow *Workflow) *Handler {
	return &Handler{logger: logger, workflow: workflow, validate: validator.New()}
}

// MountRoutes attaches change request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/change-requests", h.Submit)
	r.Get("/change-requests", h.List)
	r.Get("/change-requests/{id}", h.Get)
	r.Post("/change-requests/{id}/resolve", h.Resolve)
}

// Submit records a pending request.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cr, err := h.workflow.Submit(r.Context(), SubmitParams{
		AdmissionID:    req.AdmissionID,
		Type:           req.Type,
		Payload:        req.Payload,
		Note:           req.Note,
		RequestedBy:    req.RequestedBy,
		IdempotencyKey: key,
	})
	if err != nil {
		h.logger.Error("submit change request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cr)
}

// Get returns one request.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	cr, err := h.workflow.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cr)
}

// List returns requests, optionally filtered by status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := Status(raw)
		status = &s
	}
	requests, err := h.workflow.List(r.Context(), status)
	if err != nil {
		h.logger.Error("list change requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"change_requests": requests})
}

// Resolve applies the approver's decision.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return
	}
	var req ResolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cr, err := h.workflow.Resolve(r.Context(), id, req.Decision, req.Approver, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cr)
}
