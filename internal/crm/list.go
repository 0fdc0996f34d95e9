package crm

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// DefaultPageSize is the page size used by list views.
const DefaultPageSize = 10

// ListParams is the query of a paginated list call. Zero Page and PageSize
// mean the first page and DefaultPageSize.
type ListParams struct {
	Page     int    `json:"page" validate:"gte=1"`
	PageSize int    `json:"page_size" validate:"gte=1"`
	Keyword  string `json:"keyword,omitempty"`
}

func (p ListParams) withDefaults() ListParams {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// query renders the parameters; an empty keyword is left out.
func (p ListParams) query() map[string]string {
	return map[string]string{
		"page":      strconv.Itoa(p.Page),
		"page_size": strconv.Itoa(p.PageSize),
		"keyword":   p.Keyword,
	}
}

// Page is one page of a list together with the server-reported total.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// TotalPages is the number of pages the total spans, never less than one.
func (p *Page[T]) TotalPages() int {
	return TotalPages(p.Total, p.PageSize)
}

// listShapes are the places a list has been found in a response body, in the
// order they are tried. The first one present and not null wins.
var listShapes = []string{"data.list", "data.items", "data"}

// NormalizeList extracts the raw list elements and the total from a list
// response body. Whatever sits at the winning path must be an array, otherwise
// the list is empty. The total is data.total, then the top-level total, then
// the number of elements.
func NormalizeList(body []byte) ([]gjson.Result, int) {
	if !gjson.ValidBytes(body) {
		return nil, 0
	}
	root := gjson.ParseBytes(body)

	var items []gjson.Result
	for _, path := range listShapes {
		r := root.Get(path)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if r.IsArray() {
			items = r.Array()
		}
		break
	}

	for _, path := range []string{"data.total", "total"} {
		if r := root.Get(path); r.Exists() && r.Type != gjson.Null {
			return items, int(r.Int())
		}
	}
	return items, len(items)
}

func decodePage[T any](body []byte, params ListParams) (*Page[T], error) {
	raw, total := NormalizeList(body)
	page := &Page[T]{
		Items:    make([]T, 0, len(raw)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, r := range raw {
		item, err := decodeResult[T](r)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *item)
	}
	return page, nil
}
