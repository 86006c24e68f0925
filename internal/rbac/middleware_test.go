package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ductline/ductline/internal/shared"
)

type stubLoader struct {
	users map[int64]*User
	err   error
}

func (s stubLoader) Principal(ctx context.Context, id int64) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

type countingObserver struct {
	allowed, denied int
}

func (c *countingObserver) ObserveDecision(resource, action string, allowed bool) {
	if allowed {
		c.allowed++
		return
	}
	c.denied++
}

func requestWithUser(t *testing.T, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/boqs", nil)
	sess, err := manager.Load(req.Context(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestAuthenticateStoresPrincipal(t *testing.T) {
	user := &User{ID: 42, Role: RoleStaff, Status: StatusActive}
	mw := Middleware{Loader: stubLoader{users: map[int64]*User{42: user}}}

	var seen *User
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), requestWithUser(t, "42"))
	require.Same(t, user, seen)
}

func TestAuthenticateUnknownUserIsAnonymous(t *testing.T) {
	mw := Middleware{Loader: stubLoader{users: map[int64]*User{}}}
	called := false
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Nil(t, PrincipalFrom(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), requestWithUser(t, "7"))
	require.True(t, called)
}

func TestAuthenticateLoaderFailure(t *testing.T) {
	mw := Middleware{Loader: stubLoader{err: errors.New("db down")}}
	rec := httptest.NewRecorder()
	mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, requestWithUser(t, "7"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireUserRedirectsAnonymous(t *testing.T) {
	mw := Middleware{}
	rec := httptest.NewRecorder()
	mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boqs", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestRequireChecksPolicy(t *testing.T) {
	observer := &countingObserver{}
	mw := Middleware{Authorizer: Authorizer{Observer: observer}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	staff := &User{ID: 1, Role: RoleStaff, Status: StatusActive, SectorID: Ptr[int64](1)}
	admin := &User{ID: 2, Role: RoleAdmin, Status: StatusActive}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	mw.Require(ActionRead, ResourceUser)(ok).ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), staff)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	mw.Require(ActionRead, ResourceUser)(ok).ServeHTTP(rec, req.WithContext(WithPrincipal(req.Context(), admin)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mw.Require(ActionRead, ResourceUser)(ok).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, 1, observer.allowed)
	require.Equal(t, 1, observer.denied)
}

func TestAuthorizerRequire(t *testing.T) {
	auth := Authorizer{}
	require.ErrorIs(t, auth.Require(nil, ActionRead, ResourceBOQ, nil), shared.ErrUnauthorized)

	staff := &User{ID: 1, Role: RoleStaff, Status: StatusActive, SectorID: Ptr[int64](1)}
	err := auth.Require(staff, ActionApprove, ResourceBOQ, &Record{CreatedBy: Ptr[int64](2), SectorID: Ptr[int64](1)})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.NoError(t, auth.Require(staff, ActionCreate, ResourceBOQ, nil))
}

func TestMatrixReflectsDecide(t *testing.T) {
	user := &User{ID: 1, Role: RoleProcurement, Status: StatusActive, DepartmentID: Ptr[int64](3)}
	for _, row := range Matrix(user) {
		for _, act := range Actions() {
			require.Equal(t, Decide(user, act, row.Resource, nil), row.Allowed[act])
		}
	}
}
