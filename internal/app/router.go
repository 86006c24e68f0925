package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ductline/ductline/internal/auth"
	"github.com/ductline/ductline/internal/boq"
	"github.com/ductline/ductline/internal/committee"
	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/observability"
	"github.com/ductline/ductline/internal/pricelist"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/users"
	"github.com/ductline/ductline/internal/view"
	"github.com/ductline/ductline/jobs"
	"github.com/ductline/ductline/report"
	"github.com/ductline/ductline/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	PriceListHandler   *pricelist.Handler
	FactorHandler      *factor.Handler
	BOQHandler         *boq.Handler
	CommitteeHandler   *committee.Handler
	PermissionsHandler *rbac.PermissionsHandler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		RBAC:           &params.RBACMiddleware,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	render := func(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		viewData := view.TemplateData{
			Title:       "Ductline",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			User:        rbac.ViewUser(r.Context()),
			Data:        data,
		}
		if err := params.Templates.Render(w, name, viewData); err != nil {
			params.Logger.Error("render page", slog.String("template", name), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}

	// Landing page for unauthenticated users
	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		render(w, r, "pages/landing.html", nil)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		user := rbac.PrincipalFrom(r.Context())
		if user == nil {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}
		authz := params.RBACMiddleware.Authorizer
		render(w, r, "pages/home.html", map[string]any{
			"AppEnv":         params.Config.AppEnv,
			"Pending":        user.Status == rbac.StatusPending,
			"CanCreateBOQ":   authz.Can(user, rbac.ActionCreate, rbac.ResourceBOQ, nil),
			"CanManageUsers": authz.Can(user, rbac.ActionRead, rbac.ResourceUser, nil),
			"CanReadPrices":  authz.Can(user, rbac.ActionRead, rbac.ResourcePriceList, nil),
		})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/profile", params.UsersHandler.MountProfileRoutes)
	}
	if params.PriceListHandler != nil {
		r.Route("/price-list", params.PriceListHandler.MountRoutes)
	}
	if params.FactorHandler != nil {
		r.Route("/factor", params.FactorHandler.MountRoutes)
	}
	if params.BOQHandler != nil {
		r.Route("/boq", params.BOQHandler.MountRoutes)
	}
	if params.CommitteeHandler != nil {
		r.Route("/committee", params.CommitteeHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with a one hour Cache-Control header.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
