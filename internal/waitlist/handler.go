package waitlist

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
)

// PromoteRequest is the payload for POST /api/departments/{id}/promote.
type PromoteRequest struct {
	MaxSlots int `json:"max_slots" validate:"required,gt=0,lte=200"`
}

// Handler exposes waitlist promotion.
type Handler struct {
	logger      *slog.Logger
	prioritizer *Prioritizer
	validate    *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, prioritizer *Prioritizer) *Handler {
	return &Handler{logger: logger, prioritizer: prioritizer, validate: validator.New()}
}

// MountRoutes attaches waitlist routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/departments/{id}/promote", h.Promote)
}

// Promote returns the ordered promotion candidates for a department. The
// caller commits each candidate through the transition endpoint, keeping
// capacity reservation and promotion coupled.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	var req PromoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ids, err := h.prioritizer.Promote(r.Context(), id, req.MaxSlots)
	if err != nil {
		h.logger.Error("promote waitlist", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"admission_ids": ids})
}
