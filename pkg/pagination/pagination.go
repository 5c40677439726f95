package pagination

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window over a result list.
type Params struct {
	Limit  int
	Offset int
}

// FromContext binds the limit and offset query parameters. Missing values
// fall back to defaults; out-of-range values are clamped. Non-numeric
// values are rejected with 400.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		Int("offset", &p.Offset).
		BindError()
	if err != nil {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit and offset must be integers").SetInternal(err)
	}
	return p.clamp(), nil
}

func (p Params) clamp() Params {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page is one window of a list plus enough metadata to fetch the next.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// Slice cuts the window selected by p out of items. Device stores are
// small, so lists are paged in memory after filtering.
func Slice[T any](items []T, p Params) Page[T] {
	p = p.clamp()
	page := Page[T]{Data: []T{}, Total: len(items), Limit: p.Limit, Offset: p.Offset}
	if p.Offset < len(items) {
		end := min(p.Offset+p.Limit, len(items))
		page.Data = items[p.Offset:end]
	}
	if next := p.Offset + p.Limit; next < len(items) {
		page.HasMore = true
		page.NextOffset = &next
	}
	return page
}
