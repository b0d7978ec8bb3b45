package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/helios-sis/helios-sis/internal/auth"
	"github.com/helios-sis/helios-sis/internal/gate"
	"github.com/helios-sis/helios-sis/internal/observability"
	"github.com/helios-sis/helios-sis/internal/platform/httpx"
	"github.com/helios-sis/helios-sis/internal/rbac"
	"github.com/helios-sis/helios-sis/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Gate        gate.Gate
	AuthHandler *auth.Handler
	RBACHandler *rbac.Handler
	Metrics     *observability.Metrics
}

// NewRouter constructs the chi.Router with Helios defaults. Guards compose in
// a fixed order: authenticate first, then role/permission gates, then
// resource-scoped access gates on the routes that need them.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.Gate.Authenticate)
			params.AuthHandler.MountProtected(r)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Gate.Authenticate)
		params.RBACHandler.MountRoutes(r)
	})

	// Section-scoped attendance marking runs the full guard chain: the coarse
	// permission gate first, then the per-section access check.
	r.With(
		params.Gate.Authenticate,
		params.Gate.RequirePermission(shared.PermAttendanceMark),
		params.Gate.RequireResourceAccess(shared.PermAttendanceMark, shared.ResourceSection, "sectionID"),
	).Post("/sections/{sectionID}/attendance", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusAccepted, map[string]string{
			"section_id": chi.URLParam(r, "sectionID"),
			"status":     "accepted",
		})
	})

	return r
}
