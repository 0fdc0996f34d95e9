package crm

import (
	"fmt"

	"github.com/tansive/crmctl/internal/common/validate"
)

// ErrPageOutOfRange is returned for a page outside [1, TotalPages]. No
// request is made for such a page.
var ErrPageOutOfRange = validate.ErrValidation.New("page out of range")

// TotalPages returns ceil(total/size), and at least 1.
func TotalPages(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage moves page into [1, TotalPages(total, size)].
func ClampPage(page, total, size int) int {
	if page < 1 {
		return 1
	}
	if last := TotalPages(total, size); page > last {
		return last
	}
	return page
}

// Pager tracks the current position within a paginated list.
type Pager struct {
	Page     int
	PageSize int
	Total    int
}

func (p Pager) TotalPages() int {
	return TotalPages(p.Total, p.PageSize)
}

func (p Pager) HasPrev() bool { return p.Page > 1 }

func (p Pager) HasNext() bool { return p.Page < p.TotalPages() }

// Check reports ErrPageOutOfRange when page cannot be requested.
func (p Pager) Check(page int) error {
	if page < 1 || page > p.TotalPages() {
		return ErrPageOutOfRange.Msg(fmt.Sprintf("page %d out of range 1-%d", page, p.TotalPages()))
	}
	return nil
}
