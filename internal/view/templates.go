package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// UserInfo is the signed-in user shown in the navigation bar.
type UserInfo struct {
	Name   string
	Email  string
	Role   string
	Status string
}

// NewUserInfo builds UserInfo.
func NewUserInfo(name, email, role, status string) *UserInfo {
	return &UserInfo{Name: name, Email: email, Role: role, Status: status}
}

// IsAdmin reports whether the navigation should expose admin links.
func (u *UserInfo) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *UserInfo
	Data        any
}

var printer = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and two decimals.
func FormatMoney(v decimal.Decimal) string {
	return printer.Sprintf("%.2f", v.Round(2).InexactFloat64())
}

// FormatFactor renders a factor with its four significant decimals.
func FormatFactor(v decimal.Decimal) string {
	return v.StringFixed(4)
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatMoney":  FormatMoney,
		"formatFactor": FormatFactor,
		"formatQty": func(v decimal.Decimal) string {
			return v.StringFixed(2)
		},
		"title": func(s string) string {
			s = strings.ReplaceAll(s, "_", " ")
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"hasPrefix": strings.HasPrefix,
		"sameID": func(p *int64, id int64) bool {
			return p != nil && *p == id
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderString executes a template into a string, used for printable documents.
func (e *Engine) RenderString(name string, data TemplateData) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var b strings.Builder
	if err := e.templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
