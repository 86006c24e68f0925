package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

// Handler manages user administration and profile endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers admin user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourceUser))
		r.Get("/", h.listUsers)
		r.Get("/new", h.showCreateUserForm)
		r.Get("/{id}/edit", h.showEditUserForm)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourceUser))
		r.Post("/", h.createUser)
		r.Post("/{id}", h.updateUser)
		r.Post("/{id}/delete", h.deleteUser)
	})
}

// MountProfileRoutes registers self-service routes.
func (h *Handler) MountProfileRoutes(r chi.Router) {
	r.Use(h.rbac.RequireUser)
	r.Get("/", h.showProfile)
	r.Post("/", h.updateProfile)
	r.Post("/password", h.changePassword)
}

type formErrors map[string]string

type userForm struct {
	Email        string `validate:"required,email"`
	Password     string `validate:"omitempty,min=8"`
	Name         string `validate:"required,max=120"`
	Phone        string `validate:"max=40"`
	Position     string `validate:"max=120"`
	Role         string `validate:"required"`
	Status       string `validate:"required"`
	SectorID     string
	DepartmentID string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sectorID, _ := strconv.ParseInt(q.Get("sector_id"), 10, 64)
	filters := ListFilters{
		Role:     rbac.Role(q.Get("role")),
		Status:   rbac.Status(q.Get("status")),
		SectorID: sectorID,
		Search:   q.Get("search"),
	}
	users, err := h.service.ListUsers(r.Context(), rbac.PrincipalFrom(r.Context()), filters)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users_list.html", map[string]any{
			"Errors":   formErrors{"general": shared.UserSafeMessage(err)},
			"Filters":  filters,
			"Roles":    rbac.Roles(),
			"Statuses": rbac.Statuses(),
		}, httpx.StatusFor(err))
		return
	}
	sectors, _, _ := h.service.Organisation(r.Context())
	h.render(w, r, "pages/users_list.html", map[string]any{
		"Users":    users,
		"Filters":  filters,
		"Sectors":  sectors,
		"Roles":    rbac.Roles(),
		"Statuses": rbac.Statuses(),
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, userForm{Role: string(rbac.RoleStaff), Status: string(rbac.StatusActive)}, 0, formErrors{}, http.StatusOK)
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	u, err := h.service.GetUser(r.Context(), rbac.PrincipalFrom(r.Context()), id)
	if err != nil {
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	form := userForm{Email: u.Email, Name: u.Name, Phone: u.Phone, Position: u.Position, Role: string(u.Role), Status: string(u.Status)}
	if u.SectorID != nil {
		form.SectorID = strconv.FormatInt(*u.SectorID, 10)
	}
	if u.DepartmentID != nil {
		form.DepartmentID = strconv.FormatInt(*u.DepartmentID, 10)
	}
	h.renderForm(w, r, form, id, formErrors{}, http.StatusOK)
}

func (h *Handler) parseUserForm(r *http.Request) (userForm, formErrors) {
	form := userForm{
		Email:        r.PostFormValue("email"),
		Password:     r.PostFormValue("password"),
		Name:         r.PostFormValue("name"),
		Phone:        r.PostFormValue("phone"),
		Position:     r.PostFormValue("position"),
		Role:         r.PostFormValue("role"),
		Status:       r.PostFormValue("status"),
		SectorID:     r.PostFormValue("sector_id"),
		DepartmentID: r.PostFormValue("department_id"),
	}
	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldErr.Error()
			}
		}
	}
	return form, errs
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseUserForm(r)
	if form.Password == "" {
		errs["Password"] = "Password is required"
	}
	if len(errs) > 0 {
		h.renderForm(w, r, form, 0, errs, http.StatusBadRequest)
		return
	}
	_, err := h.service.CreateUser(r.Context(), rbac.PrincipalFrom(r.Context()), CreateInput{
		Email:        form.Email,
		Password:     form.Password,
		Name:         form.Name,
		Phone:        form.Phone,
		Position:     form.Position,
		Role:         rbac.Role(form.Role),
		Status:       rbac.Status(form.Status),
		SectorID:     httpx.OptionalInt64(form.SectorID),
		DepartmentID: httpx.OptionalInt64(form.DepartmentID),
	})
	if err != nil {
		h.logger.Warn("create user", slog.Any("error", err))
		h.renderForm(w, r, form, 0, formErrors{"general": messageFor(err)}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, "User created")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	form, errs := h.parseUserForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, form, id, errs, http.StatusBadRequest)
		return
	}
	err := h.service.UpdateUser(r.Context(), rbac.PrincipalFrom(r.Context()), id, AdminUpdateInput{
		Name:         form.Name,
		Role:         rbac.Role(form.Role),
		Status:       rbac.Status(form.Status),
		SectorID:     httpx.OptionalInt64(form.SectorID),
		DepartmentID: httpx.OptionalInt64(form.DepartmentID),
	})
	if err != nil {
		h.logger.Warn("update user", slog.Any("error", err))
		h.renderForm(w, r, form, id, formErrors{"general": messageFor(err)}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, "User updated")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.URLParamInt64(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.DeleteUser(r.Context(), rbac.PrincipalFrom(r.Context()), id); err != nil {
		h.redirectWithFlash(w, r, "/users", shared.FlashDanger, messageFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, "User deleted")
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Profile(r.Context(), rbac.PrincipalFrom(r.Context()))
	if err != nil {
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/profile.html", map[string]any{"Profile": u, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	err := h.service.UpdateProfile(r.Context(), rbac.PrincipalFrom(r.Context()), ProfileInput{
		Name:     r.PostFormValue("name"),
		Phone:    r.PostFormValue("phone"),
		Position: r.PostFormValue("position"),
	})
	if err != nil {
		h.redirectWithFlash(w, r, "/profile", shared.FlashDanger, messageFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/profile", shared.FlashSuccess, "Profile updated")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("new_password") != r.PostFormValue("confirm_password") {
		h.redirectWithFlash(w, r, "/profile", shared.FlashDanger, "Passwords do not match")
		return
	}
	err := h.service.ChangePassword(r.Context(), rbac.PrincipalFrom(r.Context()), r.PostFormValue("current_password"), r.PostFormValue("new_password"))
	if err != nil {
		h.redirectWithFlash(w, r, "/profile", shared.FlashDanger, messageFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/profile", shared.FlashSuccess, "Password changed")
}

// messageFor keeps validation details and hides everything else.
func messageFor(err error) string {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) {
		return err.Error()
	}
	return shared.UserSafeMessage(err)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, form userForm, id int64, errs formErrors, status int) {
	sectors, departments, err := h.service.Organisation(r.Context())
	if err != nil {
		h.logger.Error("load organisation", slog.Any("error", err))
	}
	h.render(w, r, "pages/users_form.html", map[string]any{
		"Form":        form,
		"ID":          id,
		"Errors":      errs,
		"Roles":       rbac.Roles(),
		"Statuses":    rbac.Statuses(),
		"Sectors":     sectors,
		"Departments": departments,
	}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: rbac.ViewUser(r.Context()), Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	shared.AddFlash(r.Context(), kind, message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}
