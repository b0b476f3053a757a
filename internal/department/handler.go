package department

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
)

// ReserveRequest is the payload for POST /api/departments/{id}/reservations.
type ReserveRequest struct {
	Count int `json:"count" validate:"required,gt=0,lte=100"`
}

// Handler exposes department queries and the reservation protocol.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	ledger   *capacity.Ledger
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, repo *Repository, ledger *capacity.Ledger) *Handler {
	return &Handler{logger: logger, repo: repo, ledger: ledger, validate: validator.New()}
}

// MountRoutes attaches department routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/departments", h.List)
	r.Get("/departments/{id}", h.Get)
	r.Get("/departments/{id}/capacity", h.CapacityReport)
	r.Post("/departments/{id}/reservations", h.Reserve)
	r.Post("/reservations/{token}/release", h.Release)
}

// List returns all departments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	departments, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list departments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"departments": departments})
}

// Get returns one department.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	d, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// CapacityReport returns the capacity snapshot.
func (h *Handler) CapacityReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	report, err := h.ledger.CapacityReport(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// Reserve places a capacity hold.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	var req ReserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.ledger.Reserve(r.Context(), id, req.Count)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// Release discards an unused reservation.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reservation token")
		return
	}
	if err := h.ledger.Release(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"released": token})
}
