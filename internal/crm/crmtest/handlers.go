package crmtest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tansive/crmctl/internal/common/apperrors"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/crypto/bcrypt"
)

var (
	errNotFound     = apperrors.New("record not found").SetStatusCode(http.StatusNotFound)
	errUnauthorized = apperrors.New("unauthorized").SetStatusCode(http.StatusUnauthorized)
)

// softError is reported inside an HTTP 200 envelope.
type softError struct {
	code int
	msg  string
}

func (e *softError) Error() string { return e.msg }

func soft(code int, msg string) error {
	return &softError{code: code, msg: msg}
}

type handlerFunc func(r *http.Request) ([]byte, error)

// wrap writes the body returned by h, or the error in the form the real
// server uses: soft errors as an envelope with a failure code, everything
// else as an HTTP error status with a message.
func wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := h(r)
		if err != nil {
			var se *softError
			if errors.As(err, &se) {
				body, _ = sjson.SetBytes([]byte(`{}`), "code", se.code)
				body, _ = sjson.SetBytes(body, "message", se.msg)
				send(w, http.StatusOK, body)
				return
			}
			status := http.StatusInternalServerError
			var appErr apperrors.Error
			if errors.As(err, &appErr) && appErr.StatusCode() != 0 {
				status = appErr.StatusCode()
			}
			body, _ = sjson.SetBytes([]byte(`{}`), "message", err.Error())
			send(w, status, body)
			return
		}
		send(w, http.StatusOK, body)
	}
}

func send(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func envelope(data []byte) []byte {
	body := []byte(`{"code":200,"message":"success"}`)
	if data != nil {
		body, _ = sjson.SetRawBytes(body, "data", data)
	}
	return body
}

// requestLogger puts a logger carrying the caller's request ID on the context.
func (b *Backend) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(httpclient.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := log.With().Str("request_id", requestID).Logger().WithContext(r.Context())
		w.Header().Set(httpclient.RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
			Msg("fake backend request")
	})
}

// track counts requests and applies injected failures.
func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1")
		b.mu.Lock()
		b.hits[path]++
		b.lastReq = r.Header.Clone()
		b.requestIDs = append(b.requestIDs, r.Header.Get(httpclient.RequestIDHeader))
		status := b.failures[path]
		b.mu.Unlock()

		if status != 0 {
			body, _ := sjson.SetBytes([]byte(`{}`), "message", http.StatusText(status))
			send(w, status, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := b.verify(r.Header.Get("Authorization")); !ok {
			wrap(func(*http.Request) ([]byte, error) { return nil, errUnauthorized })(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func readObject(r *http.Request) (gjson.Result, []byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(raw) {
		return gjson.Result{}, nil, soft(http.StatusBadRequest, "invalid request body")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return gjson.Result{}, nil, soft(http.StatusBadRequest, "invalid request body")
	}
	raw, _ = sjson.DeleteBytes(raw, "id")
	return obj, raw, nil
}

func userJSON(a *account) []byte {
	u, _ := sjson.SetBytes([]byte(`{}`), "id", a.id)
	u, _ = sjson.SetBytes(u, "username", a.name)
	u, _ = sjson.SetBytes(u, "email", a.email)
	return u
}

func (b *Backend) login(r *http.Request) ([]byte, error) {
	in, _, err := readObject(r)
	if err != nil {
		return nil, err
	}
	username, password := in.Get("username").String(), in.Get("password").String()

	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[username]
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return nil, soft(http.StatusUnauthorized, "invalid username or password")
	}
	tok, err := b.issueLocked(username)
	if err != nil {
		return nil, err
	}
	data, _ := sjson.SetBytes([]byte(`{}`), "token", tok)
	data, _ = sjson.SetRawBytes(data, "user", userJSON(acct))
	return envelope(data), nil
}

func (b *Backend) register(r *http.Request) ([]byte, error) {
	in, _, err := readObject(r)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Get("username").String())
	password := in.Get("password").String()
	email := in.Get("email").String()
	if username == "" || password == "" || email == "" {
		return nil, soft(http.StatusBadRequest, "username, password and email are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[username]; exists {
		return nil, soft(http.StatusConflict, "username already exists")
	}
	acct := &account{id: int64(len(b.accounts) + 1), name: username, email: email, hash: hash}
	b.accounts[username] = acct
	return envelope(userJSON(acct)), nil
}

func (b *Backend) userInfo(r *http.Request) ([]byte, error) {
	acct, ok := b.verify(r.Header.Get("Authorization"))
	if !ok {
		return nil, errUnauthorized
	}
	return envelope(userJSON(acct)), nil
}

// rule rejects a record whose field fails check.
type rule struct {
	field string
	check func(gjson.Result) bool
	msg   string
}

func nonBlank(v gjson.Result) bool { return strings.TrimSpace(v.String()) != "" }
func positive(v gjson.Result) bool { return v.Int() > 0 }

var (
	customerRules  = []rule{{"name", nonBlank, "name is required"}}
	productRules   = []rule{{"name", nonBlank, "name is required"}}
	inventoryRules = []rule{{"product_id", positive, "product_id is required"}}
	orderRules     = []rule{
		{"customer_id", positive, "customer_id is required"},
		{"items", func(v gjson.Result) bool { return len(v.Array()) > 0 }, "items are required"},
	}
)

func checkRules(in gjson.Result, rules []rule) error {
	for _, ru := range rules {
		if !ru.check(in.Get(ru.field)) {
			return soft(http.StatusBadRequest, ru.msg)
		}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errNotFound
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func (b *Backend) create(c *collection, rules []rule) handlerFunc {
	return func(r *http.Request) ([]byte, error) {
		in, raw, err := readObject(r)
		if err != nil {
			return nil, err
		}
		if err := checkRules(in, rules); err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		rec, err := c.insert(raw)
		if err != nil {
			return nil, err
		}
		return envelope(rec), nil
	}
}

func (b *Backend) list(c *collection) handlerFunc {
	return func(r *http.Request) ([]byte, error) {
		page := queryInt(r, "page", 1)
		size := queryInt(r, "page_size", 10)

		b.mu.Lock()
		recs, total := c.page(r.URL.Query().Get("keyword"), page, size)
		shape := b.shape
		b.mu.Unlock()

		arr := joinArray(recs)
		switch shape {
		case ShapeItems, ShapeList:
			field := "list"
			if shape == ShapeItems {
				field = "items"
			}
			data, _ := sjson.SetRawBytes([]byte(`{}`), field, arr)
			data, _ = sjson.SetBytes(data, "total", total)
			return envelope(data), nil
		default:
			body, _ := sjson.SetBytes(envelope(arr), "total", total)
			return body, nil
		}
	}
}

func (b *Backend) get(c *collection) handlerFunc {
	return func(r *http.Request) ([]byte, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		rec, ok := c.get(id)
		if !ok {
			return nil, errNotFound
		}
		return envelope(rec), nil
	}
}

func (b *Backend) update(c *collection, rules []rule) handlerFunc {
	return func(r *http.Request) ([]byte, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		in, raw, err := readObject(r)
		if err != nil {
			return nil, err
		}
		if err := checkRules(in, rules); err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := c.get(id); !ok {
			return nil, errNotFound
		}
		rec, err := c.replace(id, raw)
		if err != nil {
			return nil, err
		}
		return envelope(rec), nil
	}
}

func (b *Backend) remove(c *collection) handlerFunc {
	return func(r *http.Request) ([]byte, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if !c.delete(id) {
			return nil, errNotFound
		}
		return envelope(nil), nil
	}
}

func (b *Backend) createOrder(r *http.Request) ([]byte, error) {
	in, raw, err := readObject(r)
	if err != nil {
		return nil, err
	}
	if err := checkRules(in, orderRules); err != nil {
		return nil, err
	}
	var total float64
	in.Get("items").ForEach(func(_, item gjson.Result) bool {
		total += item.Get("quantity").Float() * item.Get("price").Float()
		return true
	})
	raw, _ = sjson.SetBytes(raw, "status", "pending")
	raw, _ = sjson.SetBytes(raw, "total_amount", total)
	raw, _ = sjson.SetBytes(raw, "created_at", time.Now().UTC().Format(time.RFC3339))

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.orders.insert(raw)
	if err != nil {
		return nil, err
	}
	id := gjson.GetBytes(rec, "id").Int()
	rec, _ = sjson.SetBytes(rec, "order_no", fmt.Sprintf("SO%06d", id))
	rec, err = b.orders.replace(id, rec)
	if err != nil {
		return nil, err
	}
	return envelope(rec), nil
}

var orderStatuses = []string{"pending", "confirmed", "shipped", "completed", "cancelled"}

func (b *Backend) updateStatus(r *http.Request) ([]byte, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	in, _, err := readObject(r)
	if err != nil {
		return nil, err
	}
	status := in.Get("status").String()
	if !slices.Contains(orderStatuses, status) {
		return nil, soft(http.StatusBadRequest, "invalid status")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.orders.get(id)
	if !ok {
		return nil, errNotFound
	}
	rec, _ = sjson.SetBytes(rec, "status", status)
	rec, err = b.orders.replace(id, rec)
	if err != nil {
		return nil, err
	}
	return envelope(rec), nil
}

func (b *Backend) getInventory(r *http.Request) ([]byte, error) {
	pid, err := pathID(r, "pid")
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.inventory.find("product_id", pid)
	if !ok {
		return nil, errNotFound
	}
	rec, _ := b.inventory.get(id)
	return envelope(rec), nil
}

func (b *Backend) updateInventory(r *http.Request) ([]byte, error) {
	pid, err := pathID(r, "pid")
	if err != nil {
		return nil, err
	}
	_, raw, err := readObject(r)
	if err != nil {
		return nil, err
	}
	raw, _ = sjson.SetBytes(raw, "product_id", pid)

	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.inventory.find("product_id", pid)
	if !ok {
		return nil, errNotFound
	}
	rec, err := b.inventory.replace(id, raw)
	if err != nil {
		return nil, err
	}
	return envelope(rec), nil
}
