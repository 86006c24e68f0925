package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 10, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.False(t, p.HasNext())
}

func TestPageFromQuery(t *testing.T) {
	assert.Equal(t, 3, PageFromQuery(url.Values{"page": {"3"}}))
	assert.Equal(t, 1, PageFromQuery(url.Values{"page": {"-2"}}))
	assert.Equal(t, 1, PageFromQuery(url.Values{}))
}
