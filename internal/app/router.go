package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/bulk"
	"github.com/oslo-kindergarten/placement-engine/internal/changerequest"
	"github.com/oslo-kindergarten/placement-engine/internal/department"
	"github.com/oslo-kindergarten/placement-engine/internal/dualplacement"
	"github.com/oslo-kindergarten/placement-engine/internal/waitlist"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	AdmissionHandler     *admission.Handler
	DepartmentHandler    *department.Handler
	WaitlistHandler      *waitlist.Handler
	DualPlacementHandler *dualplacement.Handler
	ChangeRequestHandler *changerequest.Handler
	BulkHandler          *bulk.Handler
}

// NewRouter constructs the chi.Router for the placement API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.AdmissionHandler.MountRoutes(r)
		params.DepartmentHandler.MountRoutes(r)
		params.WaitlistHandler.MountRoutes(r)
		params.DualPlacementHandler.MountRoutes(r)
		params.ChangeRequestHandler.MountRoutes(r)
		params.BulkHandler.MountRoutes(r)
	})

	return r
}
