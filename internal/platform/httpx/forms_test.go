package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalInt64(t *testing.T) {
	assert.Nil(t, OptionalInt64(""))
	assert.Nil(t, OptionalInt64("abc"))
	assert.Nil(t, OptionalInt64("0"))
	v := OptionalInt64(" 12 ")
	require.NotNil(t, v)
	assert.Equal(t, int64(12), *v)
}

func TestURLParamInt64(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var ok bool
	r.Get("/boqs/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, ok = URLParamInt64(req, "id")
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boqs/42", nil))
	assert.True(t, ok)
	assert.Equal(t, int64(42), got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boqs/x", nil))
	assert.False(t, ok)
}
