package rbac

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/view"
)

func matrixCell(rows []MatrixRow, res Resource, act Action) bool {
	for _, row := range rows {
		if row.Resource == res {
			return row.Allowed[act]
		}
	}
	return false
}

func TestMatrixFollowsDecide(t *testing.T) {
	staff := &User{ID: 3, Role: RoleStaff, Status: StatusActive}
	rows := Matrix(staff)
	require.Len(t, rows, len(Resources()))
	assert.True(t, matrixCell(rows, ResourceBOQ, ActionCreate))
	assert.True(t, matrixCell(rows, ResourcePriceList, ActionRead))
	assert.False(t, matrixCell(rows, ResourcePriceList, ActionUpdate))
	assert.False(t, matrixCell(rows, ResourceUser, ActionRead))

	suspended := &User{ID: 4, Role: RoleStaff, Status: StatusSuspended}
	assert.False(t, matrixCell(Matrix(suspended), ResourceBOQ, ActionCreate))
}

func TestPermissionsPageRequiresUser(t *testing.T) {
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPermissionsHandler(logger, templates, shared.NewCSRFManager("csrf"), Middleware{Logger: logger})

	r := chi.NewRouter()
	r.Route("/permissions", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	req := requestWithUser(t, "")
	req.URL.Path = "/permissions/"
	req = req.WithContext(WithPrincipal(req.Context(), &User{ID: 3, Name: "Sam", Role: RoleStaff, Status: StatusActive}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "What I can do")
}
