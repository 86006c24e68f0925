package boq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ductline/ductline/internal/factor"
	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

const pageSize = 25

// PDFRenderer converts HTML into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Assignee is a selectable user for assignment.
type Assignee struct {
	ID   int64
	Name string
}

// AssigneeLister lists users a BOQ can be handed to.
type AssigneeLister interface {
	Assignees(ctx context.Context) ([]Assignee, error)
}

// Handler serves BOQ pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       PDFRenderer
	assignees AssigneeLister
}

// NewHandler builds Handler instance. pdf and assignees may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf PDFRenderer, assignees AssigneeLister) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, pdf: pdf, assignees: assignees}
}

// MountRoutes registers BOQ routes. Record-level checks happen in the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireUser)
	r.Get("/", h.list)
	r.Get("/new", h.showCreate)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Get("/{id}/edit", h.showEdit)
	r.Post("/{id}", h.updateHeader)
	r.Post("/{id}/routes", h.replaceRoutes)
	r.Post("/{id}/assign", h.assign)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/delete", h.delete)
	r.Get("/{id}/summary.json", h.summaryJSON)
	r.Get("/{id}/print", h.print)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	filters := ListFilters{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if id := httpx.OptionalInt64(q.Get("sector_id")); id != nil {
		filters.SectorID = *id
	}
	actor := rbac.PrincipalFrom(r.Context())
	docs, total, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		h.logger.Error("list boqs", slog.Any("error", err))
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/boq_list.html", map[string]any{
		"BOQs":       docs,
		"Filters":    filters,
		"Statuses":   Statuses(),
		"Pagination": shared.NewPagination(page, pageSize, total),
		"CanCreate":  h.rbac.Authorizer.Can(actor, rbac.ActionCreate, rbac.ResourceBOQ, nil),
	}, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/boq_form.html", map[string]any{
		"BOQ":            BOQ{},
		"IdempotencyKey": uuid.NewString(),
		"Errors":         map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in := CreateInput{
		ProjectName:    r.PostFormValue("project_name"),
		Location:       r.PostFormValue("location"),
		Note:           r.PostFormValue("note"),
		IdempotencyKey: r.PostFormValue("idempotency_key"),
	}
	doc, err := h.service.Create(r.Context(), rbac.PrincipalFrom(r.Context()), in)
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			h.redirectWithFlash(w, r, "/boq", shared.FlashWarning, "This BOQ was already created")
			return
		}
		h.render(w, r, "pages/boq_form.html", map[string]any{
			"BOQ":            BOQ{ProjectName: in.ProjectName, Location: in.Location, Note: in.Note},
			"IdempotencyKey": uuid.NewString(),
			"Errors":         map[string]string{"general": formMessage(err)},
		}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, boqPath(doc.ID), shared.FlashSuccess, fmt.Sprintf("BOQ %s created", doc.Number))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	actor := rbac.PrincipalFrom(r.Context())
	summary, err := h.service.Summary(r.Context(), actor, id)
	if err != nil && !errors.Is(err, factor.ErrEmptyReferenceTable) {
		h.fail(w, r, "load boq", err)
		return
	}
	data := map[string]any{
		"Summary":    summary,
		"FactorOK":   err == nil,
		"CanEdit":    h.service.Can(actor, rbac.ActionUpdate, summary.BOQ) && summary.BOQ.Status.Editable(),
		"CanAssign":  h.service.Can(actor, rbac.ActionUpdate, summary.BOQ) && summary.BOQ.Status != StatusApproved,
		"CanApprove": h.service.Can(actor, rbac.ActionApprove, summary.BOQ),
		"CanDelete":  h.service.Can(actor, rbac.ActionDelete, summary.BOQ) && summary.BOQ.Status != StatusApproved,
	}
	history, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.logger.Warn("load boq history", slog.Int64("boq_id", id), slog.Any("error", err))
	}
	data["History"] = history
	if h.assignees != nil {
		if list, err := h.assignees.Assignees(r.Context()); err == nil {
			data["Assignees"] = list
		}
	}
	h.render(w, r, "pages/boq_show.html", data, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	actor := rbac.PrincipalFrom(r.Context())
	summary, err := h.service.Summary(r.Context(), actor, id)
	if err != nil && !errors.Is(err, factor.ErrEmptyReferenceTable) {
		h.fail(w, r, "load boq", err)
		return
	}
	doc := summary.BOQ
	if !doc.Status.Editable() || !h.service.Can(actor, rbac.ActionUpdate, doc) {
		h.redirectWithFlash(w, r, boqPath(id), shared.FlashWarning, "This BOQ cannot be edited")
		return
	}
	h.render(w, r, "pages/boq_form.html", map[string]any{"BOQ": doc, "Routes": summary.Routes, "Errors": map[string]string{}}, http.StatusOK)
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	in := HeaderInput{
		ProjectName: r.PostFormValue("project_name"),
		Location:    r.PostFormValue("location"),
		Note:        r.PostFormValue("note"),
	}
	if err := h.service.UpdateHeader(r.Context(), rbac.PrincipalFrom(r.Context()), id, in); err != nil {
		h.redirectWithFlash(w, r, boqPath(id), shared.FlashDanger, formMessage(err))
		return
	}
	h.redirectWithFlash(w, r, boqPath(id), shared.FlashSuccess, "BOQ updated")
}

func (h *Handler) replaceRoutes(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	inputs, err := parseRoutesForm(r)
	if err != nil {
		h.redirectWithFlash(w, r, boqPath(id)+"/edit", shared.FlashDanger, err.Error())
		return
	}
	if err := h.service.ReplaceRoutes(r.Context(), rbac.PrincipalFrom(r.Context()), id, inputs); err != nil {
		h.redirectWithFlash(w, r, boqPath(id)+"/edit", shared.FlashDanger, formMessage(err))
		return
	}
	h.redirectWithFlash(w, r, boqPath(id), shared.FlashSuccess, "Routes saved")
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	assignee := httpx.OptionalInt64(r.PostFormValue("assignee_id"))
	if err := h.service.Assign(r.Context(), rbac.PrincipalFrom(r.Context()), id, assignee); err != nil {
		h.redirectWithFlash(w, r, boqPath(id), shared.FlashDanger, formMessage(err))
		return
	}
	h.redirectWithFlash(w, r, boqPath(id), shared.FlashSuccess, "Assignment updated")
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit, "BOQ submitted for review")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve, "BOQ approved")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject, "BOQ rejected")
}

type transitionFunc func(ctx context.Context, actor *rbac.User, id int64, note string) (BOQ, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, success string) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := fn(r.Context(), rbac.PrincipalFrom(r.Context()), id, r.PostFormValue("note")); err != nil {
		if !isClientError(err) {
			h.logger.Error("boq transition", slog.Int64("boq_id", id), slog.Any("error", err))
		}
		h.redirectWithFlash(w, r, boqPath(id), shared.FlashDanger, formMessage(err))
		return
	}
	h.redirectWithFlash(w, r, boqPath(id), shared.FlashSuccess, success)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFrom(r.Context()), id); err != nil {
		h.redirectWithFlash(w, r, boqPath(id), shared.FlashDanger, formMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/boq", shared.FlashSuccess, "BOQ deleted")
}

type summaryJSON struct {
	ID        int64           `json:"id"`
	Number    string          `json:"number"`
	Status    Status          `json:"status"`
	BaseTotal decimal.Decimal `json:"base_total"`
	factor.Totals
}

func (h *Handler) summaryJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown BOQ")
		return
	}
	summary, err := h.service.Summary(r.Context(), rbac.PrincipalFrom(r.Context()), id)
	if err != nil {
		if errors.Is(err, factor.ErrEmptyReferenceTable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Reference Table Missing", "factor reference table is empty")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaryJSON{
		ID: summary.BOQ.ID, Number: summary.BOQ.Number, Status: summary.BOQ.Status,
		BaseTotal: summary.BOQ.BaseTotal, Totals: summary.Totals,
	})
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	summary, err := h.service.Summary(r.Context(), rbac.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.fail(w, r, "load boq for print", err)
		return
	}
	html, err := h.templates.RenderString("pages/boq_print.html", view.TemplateData{Title: summary.BOQ.Number, Data: map[string]any{"Summary": summary}})
	if err != nil {
		h.fail(w, r, "render boq print", err)
		return
	}
	if h.pdf == nil || r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Warn("render boq pdf", slog.Int64("boq_id", id), slog.Any("error", err))
		http.Error(w, "PDF service unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", summary.BOQ.Number+".pdf"))
	_, _ = w.Write(pdf)
}

// parseRoutesForm reads parallel form arrays. Items reference their route by
// zero-based index in item_route.
func parseRoutesForm(r *http.Request) ([]RouteInput, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	f := r.PostForm
	names := f["route_name"]
	descs := f["route_description"]
	routes := make([]RouteInput, len(names))
	for i, name := range names {
		routes[i].Name = name
		if i < len(descs) {
			routes[i].Description = descs[i]
		}
	}
	at := func(key string, i int) string {
		if vals := f[key]; i < len(vals) {
			return strings.TrimSpace(vals[i])
		}
		return ""
	}
	for i := range f["item_route"] {
		if at("item_description", i) == "" && at("item_price_id", i) == "" && at("item_qty", i) == "" {
			continue
		}
		idx, err := strconv.Atoi(at("item_route", i))
		if err != nil || idx < 0 || idx >= len(routes) {
			return nil, fmt.Errorf("item %d references an unknown route", i+1)
		}
		qty, err := parseDecimal(at("item_qty", i))
		if err != nil {
			return nil, fmt.Errorf("item %d: quantity must be a number", i+1)
		}
		material, err := parseDecimal(at("item_material_cost", i))
		if err != nil {
			return nil, fmt.Errorf("item %d: material cost must be a number", i+1)
		}
		labor, err := parseDecimal(at("item_labor_cost", i))
		if err != nil {
			return nil, fmt.Errorf("item %d: labour cost must be a number", i+1)
		}
		routes[idx].Items = append(routes[idx].Items, ItemInput{
			PriceItemID:      httpx.OptionalInt64(at("item_price_id", i)),
			Description:      at("item_description", i),
			Unit:             at("item_unit", i),
			Qty:              qty,
			MaterialUnitCost: material,
			LaborUnitCost:    labor,
		})
	}
	// blank trailing rows from the form are dropped
	kept := routes[:0]
	for _, rt := range routes {
		if strings.TrimSpace(rt.Name) == "" && len(rt.Items) == 0 {
			continue
		}
		kept = append(kept, rt)
	}
	return kept, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func isClientError(err error) bool {
	for _, target := range []error{shared.ErrValidation, shared.ErrInvalidState, shared.ErrForbidden, shared.ErrNotFound, shared.ErrConflict} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func formMessage(err error) string {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInvalidState) {
		return err.Error()
	}
	return shared.UserSafeMessage(err)
}

func boqPath(id int64) string {
	return "/boq/" + strconv.FormatInt(id, 10)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if !isClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "BOQ", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: rbac.ViewUser(r.Context()), Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, to, http.StatusSeeOther)
}
