// Package httpclient is the single choke point for calls to the CRM backend.
// Every request gets the base path, the timeout and the bearer token from the
// session store; every response goes through the envelope check and the 401
// session teardown before the caller sees it.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/crmctl/internal/common/logtrace"
	"github.com/tansive/crmctl/internal/common/uuid"
	"github.com/tansive/crmctl/internal/session"
)

const (
	// APIVersionPath is joined to the configured origin to form the base path.
	APIVersionPath = "/api/v1"
	// DefaultTimeout bounds every request end to end.
	DefaultTimeout = 15 * time.Second
	// LoginRoute is where the navigator is sent after a 401.
	LoginRoute = "/login"
	// RequestIDHeader carries the per-request correlation ID.
	RequestIDHeader = "X-Request-ID"
)

// Configurator provides the backend origin, e.g. "https://crm.example.com".
type Configurator interface {
	GetServerURL() string
}

// Navigator is told to leave the current view after the session was torn
// down. The destination is always LoginRoute.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// HTTPClient makes requests against the backend REST API.
type HTTPClient struct {
	config     Configurator
	store      session.Store
	navigator  Navigator
	httpClient *http.Client
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	Timeout               time.Duration     // defaults to DefaultTimeout
	DisableCertValidation bool              // skips TLS certificate validation
	Transport             http.RoundTripper // overrides the default transport
}

// NewClient creates a client bound to the given session store. navigator may
// be nil when nothing needs to react to a session teardown.
func NewClient(config Configurator, store session.Store, navigator Navigator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	if clientOpts.Timeout <= 0 {
		clientOpts.Timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: clientOpts.Timeout}
	switch {
	case clientOpts.Transport != nil:
		httpClient.Transport = clientOpts.Transport
	case clientOpts.DisableCertValidation:
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	return &HTTPClient{
		config:     config,
		store:      store,
		navigator:  navigator,
		httpClient: httpClient,
	}
}

// RequestOptions contains options for making HTTP requests.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PUT, DELETE)
	Path        string            // escaped path relative to the API base
	QueryParams map[string]string // empty values are not sent
	Body        []byte            // optional JSON body
}

// Response is a successful backend reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BaseURL returns the origin joined with the API version path.
func (c *HTTPClient) BaseURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(c.config.GetServerURL(), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %v", err)
	}
	u.Path = path.Join("/", u.Path, APIVersionPath)
	return u, nil
}

// DoRequest makes an HTTP request with the given options.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) (*Response, error) {
	u, err := c.BaseURL()
	if err != nil {
		return nil, err
	}
	if err := joinPath(u, opts.Path); err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range opts.QueryParams {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestID := logtrace.RequestIdFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewRequestId()
	}
	req.Header.Set(RequestIDHeader, requestID)

	c.attachToken(req)

	logger := log.With().Str("request_id", requestID).Str("method", opts.Method).Str("path", u.Path).Logger()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("request failed")
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(fmt.Errorf("failed to read response body: %w", err))
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
		Msg("request completed")

	if resp.StatusCode >= 400 {
		return nil, c.onFailure(resp.StatusCode, respBody)
	}
	if err := checkEnvelope(respBody); err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// joinPath appends an escaped relative path to u, keeping the escaping of
// each segment so an encoded "/" stays inside its segment.
func joinPath(u *url.URL, escaped string) error {
	escaped = strings.TrimLeft(escaped, "/")
	if escaped == "" {
		return nil
	}
	raw := strings.TrimRight(u.EscapedPath(), "/") + "/" + escaped
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %v", escaped, err)
	}
	u.Path, u.RawPath = decoded, raw
	return nil
}

// attachToken sets the bearer credential when the store holds a token.
// Requests without a token are sent as is; the server decides.
func (c *HTTPClient) attachToken(req *http.Request) {
	if c.store == nil {
		return
	}
	if token := session.Token(c.store); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// onFailure handles a transport-level error status. A 401 from any endpoint
// ends the session: the stored credentials are cleared and the navigator is
// sent to the login route before the error is returned to the caller.
func (c *HTTPClient) onFailure(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		if c.store != nil {
			if err := session.Clear(c.store); err != nil {
				log.Error().Err(err).Msg("unable to clear session after 401")
			}
		}
		log.Debug().Msg("session cleared after 401")
		if c.navigator != nil {
			c.navigator.Navigate(LoginRoute)
		}
	}
	return newHTTPError(status, body)
}

// Get issues a GET request.
func (c *HTTPClient) Get(ctx context.Context, resourcePath string, queryParams map[string]string) (*Response, error) {
	return c.DoRequest(ctx, RequestOptions{
		Method:      http.MethodGet,
		Path:        resourcePath,
		QueryParams: queryParams,
	})
}

// Post issues a POST request with body encoded as JSON.
func (c *HTTPClient) Post(ctx context.Context, resourcePath string, body any) (*Response, error) {
	data, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.DoRequest(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   resourcePath,
		Body:   data,
	})
}

// Put issues a PUT request with body encoded as JSON.
func (c *HTTPClient) Put(ctx context.Context, resourcePath string, body any) (*Response, error) {
	data, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.DoRequest(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   resourcePath,
		Body:   data,
	})
}

// Delete issues a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, resourcePath string) (*Response, error) {
	return c.DoRequest(ctx, RequestOptions{
		Method: http.MethodDelete,
		Path:   resourcePath,
	})
}

// encodeBody accepts pre-encoded JSON as []byte or json.RawMessage and
// marshals anything else.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request body: %w", err)
		}
		return data, nil
	}
}
