package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

// PermissionsHandler shows the general capabilities of the signed-in user.
type PermissionsHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireUser)
		r.Get("/", h.showMatrix)
	})
}

// MatrixRow is one resource line of the capability matrix.
type MatrixRow struct {
	Resource Resource
	Allowed  map[Action]bool
}

// Matrix evaluates every resource/action pair without a record context.
func Matrix(user *User) []MatrixRow {
	rows := make([]MatrixRow, 0, len(Resources()))
	for _, res := range Resources() {
		row := MatrixRow{Resource: res, Allowed: make(map[Action]bool, len(Actions()))}
		for _, act := range Actions() {
			row.Allowed[act] = Decide(user, act, res, nil)
		}
		rows = append(rows, row)
	}
	return rows
}

func (h *PermissionsHandler) showMatrix(w http.ResponseWriter, r *http.Request) {
	user := PrincipalFrom(r.Context())
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Permissions",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        ViewUser(r.Context()),
		Data: map[string]any{
			"Actions": Actions(),
			"Rows":    Matrix(user),
		},
	}
	if err := h.templates.Render(w, "pages/permissions.html", data); err != nil {
		h.logger.Error("render permissions", slog.Any("error", err))
	}
}
