// Package pagination windows in-memory list results and builds navigation
// links that keep the caller's other query parameters (search criteria,
// patient filters).
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params is the requested window plus the request it came from.
type Params struct {
	Limit  int
	Offset int

	path  string
	query url.Values
}

// FromContext reads ?limit= and ?offset=, clamping limit to (0, MaxLimit]
// and offset to >= 0. Unparseable values fall back to the defaults.
func FromContext(c echo.Context) Params {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return Params{
		Limit:  limit,
		Offset: max(offset, 0),
		path:   c.Request().URL.Path,
		query:  c.QueryParams(),
	}
}

// Link is a single navigation entry.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Page is one window of a list result. Data is never nil.
type Page[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Links   []Link `json:"links,omitempty"`
}

// New slices items to the window described by p. An offset past the end is
// clamped to len(items) so offset arithmetic cannot overflow.
func New[T any](items []T, p Params) Page[T] {
	total := len(items)
	p.Offset = min(max(p.Offset, 0), total)
	window := lo.Subset(items, p.Offset, uint(p.Limit))
	if window == nil {
		window = []T{}
	}
	return Page[T]{
		Data:    window,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
		Links:   p.links(total),
	}
}

// links returns self, then next and previous when they exist. Without a
// request path (Params built by hand) there are no links.
func (p Params) links(total int) []Link {
	if p.path == "" {
		return nil
	}
	links := []Link{{Relation: "self", URL: p.url(p.Offset)}}
	if p.Offset+p.Limit < total {
		links = append(links, Link{Relation: "next", URL: p.url(p.Offset + p.Limit)})
	}
	if p.Offset > 0 {
		links = append(links, Link{Relation: "previous", URL: p.url(max(p.Offset-p.Limit, 0))})
	}
	return links
}

func (p Params) url(offset int) string {
	q := url.Values{}
	for k, v := range p.query {
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(offset))
	return p.path + "?" + q.Encode()
}
