// Package crmtest runs an in-process CRM backend for tests. It implements the
// REST contract of the real server closely enough to exercise the client:
// envelopes, soft failures, bearer tokens, pagination and the three list
// shapes older servers used.
package crmtest

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"golang.org/x/crypto/bcrypt"
)

// ListShape selects where list endpoints put the records.
type ListShape int

const (
	// ShapeList replies {data: {list, total}}.
	ShapeList ListShape = iota
	// ShapeItems replies {data: {items, total}}.
	ShapeItems
	// ShapeArray replies {data: [...], total}.
	ShapeArray
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = time.Hour

type account struct {
	id    int64
	name  string
	email string
	hash  []byte
}

// Backend is a running fake server. All state is in memory and guarded by
// one lock.
type Backend struct {
	srv    *httptest.Server
	secret []byte

	mu         sync.Mutex
	accounts   map[string]*account
	generation int
	shape      ListShape
	failures   map[string]int
	hits       map[string]int
	lastReq    http.Header
	requestIDs []string

	customers *collection
	products  *collection
	inventory *collection
	orders    *collection
}

type Option func(*Backend)

// WithListShape makes list endpoints answer in the given shape.
func WithListShape(s ListShape) Option {
	return func(b *Backend) { b.shape = s }
}

// New starts a backend that is shut down when the test ends.
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()
	b := &Backend{
		secret:    []byte(uuid.NewString()),
		accounts:  map[string]*account{},
		failures:  map[string]int{},
		hits:      map[string]int{},
		customers: newCollection("name", "company", "email", "phone"),
		products:  newCollection("name", "sku", "category"),
		inventory: newCollection("warehouse", "location"),
		orders:    newCollection("order_no", "status", "notes"),
	}
	for _, o := range opts {
		o(b)
	}
	b.srv = httptest.NewServer(b.router())
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the origin to configure the client with.
func (b *Backend) URL() string {
	return b.srv.URL
}

// GetServerURL lets the backend serve as the client's configuration.
func (b *Backend) GetServerURL() string {
	return b.srv.URL
}

// AddUser registers an account directly.
func (b *Backend) AddUser(username, password, email string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[username] = &account{
		id:    int64(len(b.accounts) + 1),
		name:  username,
		email: email,
		hash:  hash,
	}
}

// Token issues a valid token for username without going through login.
func (b *Backend) Token(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, err := b.issueLocked(username)
	if err != nil {
		panic(err)
	}
	return tok
}

// RevokeTokens invalidates every token issued so far.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
}

// RequestIDs returns the request ID header of every request received so far.
func (b *Backend) RequestIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requestIDs)
}

// Fail makes every request to path answer with the HTTP status until the
// failure is cleared with a zero status. path is relative to /api/v1.
func (b *Backend) Fail(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path = "/" + strings.Trim(path, "/")
	if status == 0 {
		delete(b.failures, path)
		return
	}
	b.failures[path] = status
}

// Hits returns how many requests reached path, relative to /api/v1.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits["/"+strings.Trim(path, "/")]
}

// LastHeader returns a header of the most recent request.
func (b *Backend) LastHeader(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastReq.Get(name)
}

type claims struct {
	jwt.RegisteredClaims
	Generation int `json:"gen"`
}

func (b *Backend) issueLocked(username string) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Generation: b.generation,
	})
	return tok.SignedString(b.secret)
}

// verify returns the account the bearer token belongs to.
func (b *Backend) verify(header string) (*account, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, false
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.Generation != b.generation {
		return nil, false
	}
	acct, ok := b.accounts[c.Subject]
	return acct, ok
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	// the admin console runs in a browser on another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", httpclient.RequestIDHeader},
		ExposedHeaders: []string{httpclient.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(b.requestLogger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(b.track)
		r.Post("/auth/login", wrap(b.login))
		r.Post("/auth/register", wrap(b.register))

		r.Group(func(r chi.Router) {
			r.Use(b.authenticate)
			r.Get("/user/info", wrap(b.userInfo))

			b.mountCollection(r, "/customers", b.customers, customerRules)
			b.mountCollection(r, "/products", b.products, productRules)

			r.Post("/orders", wrap(b.createOrder))
			r.Get("/orders", wrap(b.list(b.orders)))
			r.Get("/orders/{id}", wrap(b.get(b.orders)))
			r.Delete("/orders/{id}", wrap(b.remove(b.orders)))
			r.Put("/orders/{id}/status", wrap(b.updateStatus))

			r.Post("/inventory", wrap(b.create(b.inventory, inventoryRules)))
			r.Get("/inventory", wrap(b.list(b.inventory)))
			r.Get("/inventory/product/{pid}", wrap(b.getInventory))
			r.Put("/inventory/product/{pid}", wrap(b.updateInventory))
		})
	})
	return r
}

func (b *Backend) mountCollection(r chi.Router, path string, c *collection, rules []rule) {
	r.Post(path, wrap(b.create(c, rules)))
	r.Get(path, wrap(b.list(c)))
	r.Get(path+"/{id}", wrap(b.get(c)))
	r.Put(path+"/{id}", wrap(b.update(c, rules)))
	r.Delete(path+"/{id}", wrap(b.remove(c)))
}
