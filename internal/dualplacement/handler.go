package dualplacement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
)

// SetupRequest is the payload for POST /api/dual-placements.
type SetupRequest struct {
	ChildID               uuid.UUID           `json:"child_id" validate:"required"`
	PrimaryAdmissionID    uuid.UUID           `json:"primary_admission_id" validate:"required"`
	SecondaryDepartmentID uuid.UUID           `json:"secondary_department_id" validate:"required"`
	StartDate             time.Time           `json:"start_date" validate:"required"`
	RateCategory          string              `json:"rate_category" validate:"required,max=40"`
	PrimarySchedule       admission.Timetable `json:"primary_schedule" validate:"required"`
	SecondarySchedule     admission.Timetable `json:"secondary_schedule" validate:"required"`
	Actor                 string              `json:"actor" validate:"required,max=80"`
}

// Handler exposes dual placement setup.
type Handler struct {
	logger      *slog.Logger
	coordinator *Coordinator
	validate    *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, coordinator *Coordinator) *Handler {
	return &Handler{logger: logger, coordinator: coordinator, validate: validator.New()}
}

// MountRoutes attaches dual placement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/dual-placements", h.Setup)
}

// Setup validates and records a split placement.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req SetupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dp, err := h.coordinator.Setup(r.Context(), Params{
		ChildID:               req.ChildID,
		PrimaryAdmissionID:    req.PrimaryAdmissionID,
		SecondaryDepartmentID: req.SecondaryDepartmentID,
		StartDate:             req.StartDate,
		RateCategory:          req.RateCategory,
		PrimarySchedule:       req.PrimarySchedule,
		SecondarySchedule:     req.SecondarySchedule,
		Actor:                 req.Actor,
		IdempotencyKey:        key,
	})
	if err != nil {
		h.logger.Error("setup dual placement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, dp)
}
