package crm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStaleResponse is returned by ListView.Load when a later load was issued
// before this one completed. The result has been discarded.
var ErrStaleResponse = errors.New("stale list response discarded")

// LoadFunc fetches one page of a list.
type LoadFunc[T any] func(ctx context.Context, params ListParams) (*Page[T], error)

// ListView holds the page currently shown by a list screen. Loads may overlap;
// only the most recently issued one is allowed to replace the current page.
type ListView[T any] struct {
	load LoadFunc[T]
	seq  atomic.Uint64

	mu      sync.Mutex
	params  ListParams
	current *Page[T]
}

func NewListView[T any](load LoadFunc[T], pageSize int) *ListView[T] {
	return &ListView[T]{
		load:   load,
		params: ListParams{Page: 1, PageSize: pageSize}.withDefaults(),
	}
}

// Load fetches params and makes the result current, unless another Load was
// started in the meantime.
func (v *ListView[T]) Load(ctx context.Context, params ListParams) (*Page[T], error) {
	params = params.withDefaults()
	seq := v.seq.Add(1)

	page, err := v.load(ctx, params)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq.Load() {
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, err
	}
	v.params = params
	v.current = page
	return page, nil
}

// Search reloads the first page filtered by keyword.
func (v *ListView[T]) Search(ctx context.Context, keyword string) (*Page[T], error) {
	p := v.Params()
	p.Page = 1
	p.Keyword = keyword
	return v.Load(ctx, p)
}

// GoTo loads another page of the current query. Pages outside the range known
// from the last load are rejected without a request.
func (v *ListView[T]) GoTo(ctx context.Context, page int) (*Page[T], error) {
	if err := v.Pager().Check(page); err != nil {
		return nil, err
	}
	p := v.Params()
	p.Page = page
	return v.Load(ctx, p)
}

// Reload fetches the current page again, e.g. after a create or delete.
func (v *ListView[T]) Reload(ctx context.Context) (*Page[T], error) {
	return v.Load(ctx, v.Params())
}

func (v *ListView[T]) Current() *Page[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *ListView[T]) Params() ListParams {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// Pager describes the position of the current page.
func (v *ListView[T]) Pager() Pager {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := Pager{Page: v.params.Page, PageSize: v.params.PageSize}
	if v.current != nil {
		p.Total = v.current.Total
	}
	return p
}
