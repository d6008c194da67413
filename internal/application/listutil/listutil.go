// Package listutil parses paging and filter query parameters for list endpoints.
package listutil

import (
	"net/url"
	"slices"
	"strconv"
)

// Page is a 1-indexed window over an ordered list.
type Page struct {
	Number int // 1-indexed page number
	Size   int // rows per page
}

// PageInfo is the paging metadata returned with a list.
type PageInfo struct {
	Page    int  `json:"page"`
	PerPage int  `json:"perPage"`
	HasMore bool `json:"hasMore"`
}

// DefaultPageSize is the default number of rows per page.
const DefaultPageSize = 50

// PageSizes are the allowed rows-per-page values.
var PageSizes = []int{20, 50, 100, 200}

// ParsePage extracts page and per_page from URL query values.
// PRE: none
// POST: Number >= 1; Size is one of PageSizes
func ParsePage(q url.Values) Page {
	n, _ := strconv.Atoi(q.Get("page"))
	if n < 1 {
		n = 1
	}
	size, _ := strconv.Atoi(q.Get("per_page"))
	if !slices.Contains(PageSizes, size) {
		size = DefaultPageSize
	}
	return Page{Number: n, Size: size}
}

// Offset is the number of rows before the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Limit asks for one row past the page so Trim can tell whether another page exists.
func (p Page) Limit() int {
	return p.Size + 1
}

// Trim cuts rows fetched with Limit down to the page and reports the paging metadata.
// POST: len(result) <= p.Size
func Trim[T any](rows []T, p Page) ([]T, PageInfo) {
	info := PageInfo{Page: p.Number, PerPage: p.Size}
	if len(rows) > p.Size {
		rows = rows[:p.Size]
		info.HasMore = true
	}
	return rows, info
}

// ParseFilters returns the non-empty values of the allowed filter keys.
// PRE: keys lists the allowed filter parameter names
// POST: returns only recognised keys
func ParseFilters(q url.Values, keys []string) map[string]string {
	filters := make(map[string]string, len(keys))
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			filters[key] = v
		}
	}
	return filters
}
