package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		page, size int
		want       Page
	}{
		{"defaults", 0, 0, Page{Page: 1, Size: 20, Offset: 0, Limit: 20}},
		{"third page", 3, 10, Page{Page: 3, Size: 10, Offset: 20, Limit: 10}},
		{"clamped size", 1, 1000, Page{Page: 1, Size: 100, Offset: 0, Limit: 100}},
		{"negative page", -2, 5, Page{Page: 1, Size: 5, Offset: 0, Limit: 5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Calculate(tt.page, tt.size), tt.name)
	}
}

func TestMeta(t *testing.T) {
	t.Parallel()

	m := Calculate(2, 10).Meta(25)
	assert.Equal(t, Meta{Page: 2, Size: 10, Total: 25, TotalPages: 3, HasPrev: true, HasNext: true}, m)

	m = Calculate(3, 10).Meta(25)
	assert.False(t, m.HasNext)
}

func TestFromQuery(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=2&size=abc", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	assert.Equal(t, Page{Page: 2, Size: 20, Offset: 20, Limit: 20}, FromQuery(c))
}
