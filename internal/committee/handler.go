package committee

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ductline/ductline/internal/boq"
	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

// Handler serves committee pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	boqs      BOQPort
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	users     boq.AssigneeLister
	validate  *validator.Validate
}

// NewHandler builds Handler instance. users may be nil.
func NewHandler(logger *slog.Logger, service *Service, boqs BOQPort, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, users boq.AssigneeLister) *Handler {
	return &Handler{logger: logger, service: service, boqs: boqs, templates: templates, csrf: csrf, rbac: rbac, users: users, validate: validator.New()}
}

// MountRoutes registers committee routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourceCommittee))
		r.Get("/boq/{boqID}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourceCommittee))
		r.Post("/boq/{boqID}", h.assign)
		r.Post("/{memberID}/role", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionDelete, rbac.ResourceCommittee))
		r.Post("/{memberID}/delete", h.remove)
	})
}

type assignForm struct {
	UserID int64  `validate:"required,gt=0"`
	Role   string `validate:"omitempty,oneof=chair member secretary"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	boqID, ok := httpx.URLParamInt64(r, "boqID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	actor := rbac.PrincipalFrom(r.Context())
	doc, err := h.boqs.Get(r.Context(), actor, boqID)
	if err != nil {
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	members, err := h.service.List(r.Context(), actor, boqID)
	if err != nil {
		h.logger.Error("list committee", slog.Int64("boq_id", boqID), slog.Any("error", err))
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	data := map[string]any{
		"BOQ":       doc,
		"Members":   members,
		"Roles":     Roles(),
		"CanAssign": h.rbac.Authorizer.Can(actor, rbac.ActionAssignCommittee, rbac.ResourceBOQ, doc.Record()),
		"CanUpdate": h.service.Can(actor, rbac.ActionUpdate),
		"CanRemove": h.service.Can(actor, rbac.ActionDelete),
	}
	if h.users != nil {
		if users, err := h.users.Assignees(r.Context()); err == nil {
			data["Users"] = users
		}
	}
	h.render(w, r, "pages/committee.html", data, http.StatusOK)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	boqID, ok := httpx.URLParamInt64(r, "boqID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	back := committeePath(boqID)
	form := assignForm{Role: r.PostFormValue("role")}
	if id := httpx.OptionalInt64(r.PostFormValue("user_id")); id != nil {
		form.UserID = *id
	}
	if err := h.validate.Struct(form); err != nil {
		h.redirectWithFlash(w, r, back, shared.FlashDanger, "Choose a user and a valid committee role")
		return
	}
	if _, err := h.service.Assign(r.Context(), rbac.PrincipalFrom(r.Context()), boqID, form.UserID, Role(form.Role)); err != nil {
		h.redirectWithFlash(w, r, back, shared.FlashDanger, message(err))
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Committee member assigned")
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	memberID, ok := httpx.URLParamInt64(r, "memberID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	back := committeePath(formBOQID(r))
	if err := h.service.UpdateRole(r.Context(), rbac.PrincipalFrom(r.Context()), memberID, Role(r.PostFormValue("role"))); err != nil {
		h.redirectWithFlash(w, r, back, shared.FlashDanger, message(err))
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Committee role updated")
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	memberID, ok := httpx.URLParamInt64(r, "memberID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	boqID, err := h.service.Remove(r.Context(), rbac.PrincipalFrom(r.Context()), memberID)
	if err != nil {
		h.redirectWithFlash(w, r, committeePath(formBOQID(r)), shared.FlashDanger, message(err))
		return
	}
	h.redirectWithFlash(w, r, committeePath(boqID), shared.FlashSuccess, "Committee member removed")
}

func message(err error) string {
	if errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrValidation) {
		return err.Error()
	}
	return shared.UserSafeMessage(err)
}

func formBOQID(r *http.Request) int64 {
	if id := httpx.OptionalInt64(r.PostFormValue("boq_id")); id != nil {
		return *id
	}
	return 0
}

func committeePath(boqID int64) string {
	if boqID <= 0 {
		return "/boq"
	}
	return fmt.Sprintf("/committee/boq/%d", boqID)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Committee", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: rbac.ViewUser(r.Context()), Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, to, http.StatusSeeOther)
}
