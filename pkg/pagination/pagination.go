package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Page   int
	Size   int
	Offset int
	Limit  int
}

type Meta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func Calculate(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: page, Size: size, Offset: (page - 1) * size, Limit: size}
}

// FromQuery reads ?page= and ?size=.
func FromQuery(c echo.Context) Page {
	return Calculate(
		ParseIntDefault(c.QueryParam("page"), 1),
		ParseIntDefault(c.QueryParam("size"), DefaultPageSize),
	)
}

func (p Page) Meta(total int64) Meta {
	return Meta{
		Page:       p.Page,
		Size:       p.Limit,
		Total:      total,
		TotalPages: (total + int64(p.Limit) - 1) / int64(p.Limit),
		HasPrev:    p.Page > 1,
		HasNext:    int64(p.Offset+p.Limit) < total,
	}
}
