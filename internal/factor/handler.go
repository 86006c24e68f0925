package factor

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

const maxImportBytes = 1 << 20

// Handler serves the reference table pages and the calculator endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers factor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireUser)
		r.Get("/", h.showTable)
		r.Get("/calc", h.calc)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourcePriceList))
		r.Post("/import", h.importTable)
	})
}

func (h *Handler) showTable(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.Table(r.Context())
	if err != nil {
		h.logger.Error("load factor table", slog.Any("error", err))
		h.render(w, r, map[string]any{"Error": shared.UserSafeMessage(err)}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, map[string]any{"Points": points}, http.StatusOK)
}

type calcResponse struct {
	CostInMillions decimal.Decimal `json:"cost_in_millions"`
	Totals
}

func (h *Handler) calc(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("total")
	base, err := decimal.NewFromString(raw)
	if err != nil || base.IsNegative() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "total must be a non-negative amount")
		return
	}
	totals, err := h.service.Totals(r.Context(), base)
	if err != nil {
		if errors.Is(err, ErrEmptyReferenceTable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Reference Table Missing", err.Error())
			return
		}
		h.logger.Error("factor calc", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calcResponse{CostInMillions: CostInMillions(base), Totals: totals})
}

func (h *Handler) importTable(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		h.redirectWithFlash(w, r, shared.FlashDanger, "Upload a CSV file")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.redirectWithFlash(w, r, shared.FlashDanger, "Upload a CSV file")
		return
	}
	defer file.Close()
	points, err := ParseCSV(file)
	if err == nil {
		err = h.service.Import(r.Context(), points)
	}
	if err != nil {
		h.logger.Warn("factor import rejected", slog.Any("error", err))
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, ErrEmptyReferenceTable) {
			msg = err.Error()
		}
		h.redirectWithFlash(w, r, shared.FlashDanger, msg)
		return
	}
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Reference table imported")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if p := rbac.PrincipalFrom(r.Context()); p != nil {
		data["CanImport"] = h.rbac.Authorizer.Can(p, rbac.ActionUpdate, rbac.ResourcePriceList, nil)
	}
	viewData := view.TemplateData{Title: "Factor F", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: rbac.ViewUser(r.Context()), Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/factor.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, "/factor", http.StatusSeeOther)
}
