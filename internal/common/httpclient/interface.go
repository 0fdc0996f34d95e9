package httpclient

import (
	"context"
)

// HTTPClientInterface is what the auth manager and the resource APIs need
// from a client.
type HTTPClientInterface interface {
	DoRequest(ctx context.Context, opts RequestOptions) (*Response, error)
	Get(ctx context.Context, resourcePath string, queryParams map[string]string) (*Response, error)
	Post(ctx context.Context, resourcePath string, body any) (*Response, error)
	Put(ctx context.Context, resourcePath string, body any) (*Response, error)
	Delete(ctx context.Context, resourcePath string) (*Response, error)
}

var _ HTTPClientInterface = &HTTPClient{}
