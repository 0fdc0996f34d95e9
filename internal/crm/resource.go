// Package crm is the typed client of the CRM backend resources: customers,
// products, inventory and orders. All calls go through the shared HTTP client,
// so they carry the session token and fail with *httpclient.Error.
package crm

import (
	"context"
	"net/url"
	"strings"

	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/common/validate"
)

// ErrMissingID is returned when a call needs an identifier and got none.
var ErrMissingID = validate.ErrValidation.New("id is required")

// ErrInvalidID is returned for ids that would name another path.
var ErrInvalidID = validate.ErrValidation.New("id must not be . or ..")

// Resource is the CRUD surface shared by the backend collections.
type Resource[T any] struct {
	client httpclient.HTTPClientInterface
	base   string
}

func NewResource[T any](client httpclient.HTTPClientInterface, base string) *Resource[T] {
	return &Resource[T]{client: client, base: base}
}

// Path returns the escaped collection path, or the path of one member when
// id is set. Each id element is escaped as a single segment.
func (r *Resource[T]) Path(id ...string) string {
	elems := []string{r.base}
	for _, e := range id {
		elems = append(elems, url.PathEscape(e))
	}
	return strings.Join(elems, "/")
}

// List fetches one page of the collection.
func (r *Resource[T]) List(ctx context.Context, params ListParams) (*Page[T], error) {
	params = params.withDefaults()
	if err := validate.Struct(params); err != nil {
		return nil, err
	}
	resp, err := r.client.Get(ctx, r.Path(), params.query())
	if err != nil {
		return nil, err
	}
	return decodePage[T](resp.Body, params)
}

func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	resp, err := r.client.Get(ctx, r.Path(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[T](resp.Data())
}

// Create validates v and posts it. The server's copy is returned when the
// reply carries one, otherwise v itself.
func (r *Resource[T]) Create(ctx context.Context, v *T) (*T, error) {
	return r.send(ctx, r.client.Post, r.Path(), v)
}

// Update validates v and replaces the member id with it.
func (r *Resource[T]) Update(ctx context.Context, id string, v *T) (*T, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return r.send(ctx, r.client.Put, r.Path(id), v)
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	_, err := r.client.Delete(ctx, r.Path(id))
	return err
}

type sendFunc func(ctx context.Context, resourcePath string, body any) (*httpclient.Response, error)

func (r *Resource[T]) send(ctx context.Context, send sendFunc, resourcePath string, v *T) (*T, error) {
	if v == nil {
		return nil, validate.ErrValidation.Msg("request body is required")
	}
	if err := validate.Struct(v); err != nil {
		return nil, err
	}
	body, err := encode(v)
	if err != nil {
		return nil, err
	}
	resp, err := send(ctx, resourcePath, body)
	if err != nil {
		return nil, err
	}
	if d := resp.Data(); d.IsObject() {
		if out, err := decodeResult[T](d); err == nil {
			return out, nil
		}
	}
	return v, nil
}

func checkID(id string) error {
	switch strings.TrimSpace(id) {
	case "":
		return ErrMissingID
	case ".", "..":
		return ErrInvalidID
	}
	return nil
}
