package admission

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oslo-kindergarten/placement-engine/internal/platform/httpx"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Handler exposes the admission command/query API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches admission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/admissions", h.Create)
	r.Get("/admissions", h.List)
	r.Get("/admissions/{id}", h.Get)
	r.Get("/admissions/{id}/events", h.Events)
	r.Post("/admissions/{id}/transition", h.Transition)
}

// Create registers a new admission.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req CreateAdmissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.Create(r.Context(), CreateParams{
		ChildID:        req.ChildID,
		DepartmentID:   req.DepartmentID,
		StartDate:      req.StartDate,
		RateCategory:   req.RateCategory,
		Timetable:      req.Timetable,
		Queue:          req.Queue,
		Actor:          req.Actor,
		IdempotencyKey: key,
	})
	if err != nil {
		h.logger.Error("create admission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

// Get returns one admission.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid admission id")
		return
	}
	a, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

// Events returns the audit trail.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid admission id")
		return
	}
	events, err := h.service.Events(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

// List returns admissions matching query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	q := r.URL.Query()
	if raw := q.Get("department_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department_id")
			return
		}
		filter.DepartmentID = &id
	}
	if raw := q.Get("child_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid child_id")
			return
		}
		filter.ChildID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = &status
	}
	if raw := q.Get("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if raw := q.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 1 {
			filter.Offset = (n - 1) * filter.Limit
		}
	}
	sortByName := q.Get("sort") == "child_name"

	admissions, pagination, err := h.service.List(r.Context(), filter, sortByName)
	if err != nil {
		h.logger.Error("list admissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Admissions: admissions, Pagination: pagination})
}

// Transition applies a status transition command.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid admission id")
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.Transition(r.Context(), TransitionParams{
		AdmissionID:    id,
		Target:         req.Target,
		Actor:          req.Actor,
		Reason:         req.Reason,
		EndDate:        req.EndDate,
		IdempotencyKey: key,
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error("transition admission", slog.String("admission_id", id.String()), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}
