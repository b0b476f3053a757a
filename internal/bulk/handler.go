package bulk

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// ExecuteRequest is the payload for POST /api/bulk-actions.
type ExecuteRequest struct {
	ActionType ActionType  `json:"action_type" validate:"required"`
	TargetIDs  []uuid.UUID `json:"target_ids" validate:"required,min=1,max=500"`
	Parameters Parameters  `json:"parameters"`
	Actor      string      `json:"actor" validate:"required,max=80"`
}

// Handler exposes bulk action execution.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	validate     *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, orchestrator *Orchestrator) *Handler {
	return &Handler{logger: logger, orchestrator: orchestrator, validate: validator.New()}
}

// MountRoutes attaches bulk action routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bulk-actions", h.Execute)
}

// Execute runs a bulk action. The Idempotency-Key header pins the bulk
// id so an interrupted batch can be retried under the same key.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req ExecuteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	bulkID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))

	result, err := h.orchestrator.Execute(r.Context(), Request{
		BulkID:     bulkID,
		ActionType: req.ActionType,
		TargetIDs:  req.TargetIDs,
		Parameters: req.Parameters,
		Actor:      req.Actor,
	})
	if err != nil {
		// An aborted all-or-nothing batch still carries the structured
		// result naming the originating target.
		if len(result.Failed) > 0 {
			status := http.StatusConflict
			if shared.KindOf(err) == shared.KindValidation {
				status = http.StatusBadRequest
			}
			httpx.JSON(w, status, result)
			return
		}
		h.logger.Error("execute bulk action", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
