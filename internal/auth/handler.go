package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ductline/ductline/internal/platform/httpx"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

// OrgOption is one selectable sector or department. ParentID is the sector of a department.
type OrgOption struct {
	ID       int64
	ParentID int64
	Name     string
}

// OrgLister supplies sectors and departments for the registration form.
type OrgLister interface {
	OrgOptions(ctx context.Context) (sectors, departments []OrgOption, err error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	orgs           OrgLister
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, orgs OrgLister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		orgs:           orgs,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

type registerForm struct {
	Email        string `validate:"required,email"`
	Password     string `validate:"required,min=8"`
	Confirm      string `validate:"required,eqfield=Password"`
	Name         string `validate:"required,max=120"`
	Phone        string `validate:"max=40"`
	Position     string `validate:"max=120"`
	SectorID     string
	DepartmentID string
}

type registerPageData struct {
	Form        registerForm
	Errors      map[string]string
	Sectors     []OrgOption
	Departments []OrgOption
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/login.html", "Sign in", loginPageData{Form: loginForm{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errs := validationErrors(h.validator.Struct(form))

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			errs["general"] = "Invalid email or password"
		} else {
			if sess == nil {
				h.logger.Error("session missing during login")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			h.sessionManager.Renew(sess)
			h.csrfManager.Rotate(sess)
			sess.SetUser(strconv.FormatInt(user.ID, 10))
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Welcome back"})
			expiresAt := time.Now().Add(h.sessionManager.TTL())
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			h.logger.Info("user signed in", slog.Int64("user_id", user.ID), slog.String("status", string(user.Status)))
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	form.Password = ""
	h.render(w, r, "pages/login.html", "Sign in", loginPageData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, registerForm{}, map[string]string{}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Email:        r.PostFormValue("email"),
		Password:     r.PostFormValue("password"),
		Confirm:      r.PostFormValue("confirm_password"),
		Name:         r.PostFormValue("name"),
		Phone:        r.PostFormValue("phone"),
		Position:     r.PostFormValue("position"),
		SectorID:     r.PostFormValue("sector_id"),
		DepartmentID: r.PostFormValue("department_id"),
	}
	errs := validationErrors(h.validator.Struct(form))
	if len(errs) == 0 {
		_, err := h.service.Register(r.Context(), RegisterInput{
			Email:        form.Email,
			Password:     form.Password,
			Name:         form.Name,
			Phone:        form.Phone,
			Position:     form.Position,
			SectorID:     httpx.OptionalInt64(form.SectorID),
			DepartmentID: httpx.OptionalInt64(form.DepartmentID),
		})
		if err == nil {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Account created. An administrator will activate it."})
			}
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		h.logger.Warn("register", slog.Any("error", err))
		if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) {
			errs["general"] = err.Error()
		} else {
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	form.Password, form.Confirm = "", ""
	h.renderRegister(w, r, form, errs, http.StatusBadRequest)
}

func (h *Handler) renderRegister(w http.ResponseWriter, r *http.Request, form registerForm, errs map[string]string, status int) {
	data := registerPageData{Form: form, Errors: errs}
	if h.orgs != nil {
		sectors, departments, err := h.orgs.OrgOptions(r.Context())
		if err != nil {
			h.logger.Error("load organisation options", slog.Any("error", err))
		}
		data.Sectors, data.Departments = sectors, departments
	}
	h.render(w, r, "pages/register.html", "Register", data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", template), slog.Any("error", err))
	}
}

func validationErrors(err error) map[string]string {
	errs := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fieldErr := range verrs {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
	}
	return errs
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
