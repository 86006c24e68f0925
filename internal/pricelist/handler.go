package pricelist

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

const pageSize = 50

// Handler serves the price list pages.
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

// MountRoutes registers price list routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourcePriceList))
		r.Get("/", h.list)
		r.Get("/items.json", h.listJSON)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourcePriceList))
		r.Get("/new", h.showForm)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/", h.save)
		r.Post("/{id}", h.save)
		r.Post("/{id}/delete", h.delete)
	})
}

func (h *Handler) filters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	return ListFilters{Search: q.Get("search"), Category: q.Get("category"), Limit: pageSize, Offset: (page - 1) * pageSize}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	items, total, err := h.service.List(r.Context(), rbac.PrincipalFrom(r.Context()), filters)
	if err != nil {
		h.logger.Error("list price items", slog.Any("error", err))
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	categories, _ := h.service.Categories(r.Context())
	user := rbac.PrincipalFrom(r.Context())
	h.render(w, r, "pages/pricelist_list.html", map[string]any{
		"Items":      items,
		"Filters":    filters,
		"Categories": categories,
		"Pagination": shared.NewPagination(shared.PageFromQuery(r.URL.Query()), pageSize, total),
		"CanEdit":    h.rbac.Authorizer.Can(user, rbac.ActionUpdate, rbac.ResourcePriceList, nil),
	}, http.StatusOK)
}

type itemJSON struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	MaterialCost decimal.Decimal `json:"material_cost"`
	LaborCost    decimal.Decimal `json:"labor_cost"`
}

func (h *Handler) listJSON(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.service.List(r.Context(), rbac.PrincipalFrom(r.Context()), h.filters(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, itemJSON{ID: it.ID, Code: it.Code, Name: it.Name, Unit: it.Unit, MaterialCost: it.MaterialCost, LaborCost: it.LaborCost})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	var item Item
	if id, ok := httpx.URLParamInt64(r, "id"); ok {
		var err error
		item, err = h.service.Get(r.Context(), rbac.PrincipalFrom(r.Context()), id)
		if err != nil {
			http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
			return
		}
	}
	h.render(w, r, "pages/pricelist_form.html", map[string]any{"Item": item, "Errors": map[string]string{}}, http.StatusOK)
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	material, errM := parseMoney(r.PostFormValue("material_cost"))
	labor, errL := parseMoney(r.PostFormValue("labor_cost"))
	in := ItemInput{
		Code:         r.PostFormValue("code"),
		Name:         r.PostFormValue("name"),
		Unit:         r.PostFormValue("unit"),
		Category:     r.PostFormValue("category"),
		MaterialCost: material,
		LaborCost:    labor,
	}
	item := Item{Code: in.Code, Name: in.Name, Unit: in.Unit, Category: in.Category, MaterialCost: material, LaborCost: labor}
	if errM != nil || errL != nil {
		h.render(w, r, "pages/pricelist_form.html", map[string]any{"Item": item, "Errors": map[string]string{"general": "Costs must be numbers"}}, http.StatusBadRequest)
		return
	}
	actor := rbac.PrincipalFrom(r.Context())
	var err error
	if id, ok := httpx.URLParamInt64(r, "id"); ok {
		item.ID = id
		err = h.service.Update(r.Context(), actor, id, in)
	} else {
		_, err = h.service.Create(r.Context(), actor, in)
	}
	if err != nil {
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) {
			msg = err.Error()
		}
		h.render(w, r, "pages/pricelist_form.html", map[string]any{"Item": item, "Errors": map[string]string{"general": msg}}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Price item saved")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFrom(r.Context()), id); err != nil {
		msg := shared.UserSafeMessage(err)
		if errors.Is(err, shared.ErrConflict) {
			msg = "Item is used by a BOQ and cannot be deleted"
		}
		h.redirectWithFlash(w, r, shared.FlashDanger, msg)
		return
	}
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Price item deleted")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Price list", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: rbac.ViewUser(r.Context()), Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, "/price-list", http.StatusSeeOther)
}
