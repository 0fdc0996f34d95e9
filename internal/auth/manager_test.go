package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/session"
)

type serverURL string

func (s serverURL) GetServerURL() string { return string(s) }

type notice struct {
	ok  bool
	msg string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Success(msg string) { n.add(true, msg) }
func (n *recordingNotifier) Error(msg string)   { n.add(false, msg) }

func (n *recordingNotifier) add(ok bool, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{ok: ok, msg: msg})
}

func (n *recordingNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

type countingStore struct {
	*session.MemoryStore
	sets atomic.Int32
}

func (c *countingStore) Set(values map[string]string) error {
	c.sets.Add(1)
	return c.MemoryStore.Set(values)
}

type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	lastPath string
	lastBody map[string]any
}

// newBackend serves every request with the given status and body.
func newBackend(t *testing.T, status int, body string) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		fb.mu.Lock()
		fb.lastPath = r.URL.Path
		fb.lastBody = decoded
		fb.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) last() (string, map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastPath, fb.lastBody
}

type fixture struct {
	manager  *Manager
	store    session.Store
	notifier *recordingNotifier
	routes   *[]string
}

func newFixture(t *testing.T, fb *fakeBackend, store session.Store) fixture {
	t.Helper()
	var (
		manager *Manager
		routes  []string
	)
	nav := httpclient.NavigatorFunc(func(route string) {
		routes = append(routes, route)
		manager.Reload()
	})
	client := httpclient.NewClient(serverURL(fb.srv.URL), store, nav)
	notifier := &recordingNotifier{}
	manager = NewManager(client, store, notifier)
	return fixture{manager: manager, store: store, notifier: notifier, routes: &routes}
}

func authenticatedStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	s := session.NewMemoryStore()
	require.NoError(t, session.Persist(s, "OLD", &session.User{Username: "old"}))
	return s
}

func TestLoginSuccess(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"data":{"token":"T","user":{"username":"a"}}}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	ok := f.manager.Login(context.Background(), Credentials{Username: "a", Password: "p"})
	require.True(t, ok)

	assert.Equal(t, "T", session.Token(f.store))
	raw, _ := f.store.Get(session.KeyUser)
	assert.JSONEq(t, `{"username":"a"}`, raw)
	assert.True(t, f.manager.IsAuthenticated())
	assert.Equal(t, "a", f.manager.User().Username)
	assert.Equal(t, []notice{{ok: true, msg: MsgLoginSuccess}}, f.notifier.all())

	path, body := fb.last()
	assert.Equal(t, "/api/v1/auth/login", path)
	assert.Equal(t, map[string]any{"username": "a", "password": "p"}, body)
}

func TestLoginAccessTokenAndSynthesizedUser(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"access_token":"AT"}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	require.True(t, f.manager.Login(context.Background(), Credentials{Username: "carol", Password: "p"}))
	assert.Equal(t, "AT", session.Token(f.store))
	raw, _ := f.store.Get(session.KeyUser)
	assert.JSONEq(t, `{"username":"carol"}`, raw)
}

func TestLoginKeepsServerProfileFields(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"data":{"token":"T","user":{"username":"a","email":"a@example.com","role":"admin"}}}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	require.True(t, f.manager.Login(context.Background(), Credentials{Username: "a", Password: "p"}))
	u := f.manager.User()
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, "admin", u.Extra["role"])
}

func TestLoginSoftFailure(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":401,"message":"bad credentials"}`)
	store := authenticatedStore(t)
	f := newFixture(t, fb, store)
	require.True(t, f.manager.IsAuthenticated())

	ok := f.manager.Login(context.Background(), Credentials{Username: "a", Password: "wrong"})
	assert.False(t, ok)
	assert.Equal(t, "OLD", session.Token(store))
	raw, _ := store.Get(session.KeyUser)
	assert.JSONEq(t, `{"username":"old"}`, raw)
	assert.True(t, f.manager.IsAuthenticated())
	assert.Equal(t, []notice{{ok: false, msg: "bad credentials"}}, f.notifier.all())
	assert.Empty(t, *f.routes)
}

func TestLoginFailureMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"error field", http.StatusBadRequest, `{"error":"user locked"}`, "user locked"},
		{"no message", http.StatusInternalServerError, ``, MsgLoginFailed},
		{"no token in reply", http.StatusOK, `{"code":200,"data":{"user":{"username":"a"}}}`, MsgLoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newBackend(t, tt.status, tt.body)
			f := newFixture(t, fb, session.NewMemoryStore())

			assert.False(t, f.manager.Login(context.Background(), Credentials{Username: "a", Password: "p"}))
			assert.False(t, f.manager.IsAuthenticated())
			assert.Equal(t, "", session.Token(f.store))
			assert.Equal(t, []notice{{ok: false, msg: tt.msg}}, f.notifier.all())
		})
	}
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"token":"T"}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	assert.False(t, f.manager.Login(context.Background(), Credentials{Username: "  ", Password: ""}))
	assert.Equal(t, int32(0), fb.calls.Load())
	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.False(t, notices[0].ok)
	assert.Equal(t, "username is required; password is required", notices[0].msg)
	assert.False(t, f.manager.Loading())
}

func TestRegister(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"message":"created","data":{"id":3}}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	ok := f.manager.Register(context.Background(), RegisterRequest{Username: "new", Password: "p", Email: "new@example.com"})
	require.True(t, ok)
	assert.False(t, f.manager.IsAuthenticated())
	assert.Equal(t, "", session.Token(f.store))
	assert.Equal(t, []notice{{ok: true, msg: MsgRegisterSuccess}}, f.notifier.all())

	path, body := fb.last()
	assert.Equal(t, "/api/v1/auth/register", path)
	assert.Equal(t, "new@example.com", body["email"])
}

func TestRegisterFailure(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":409,"message":"username taken"}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	assert.False(t, f.manager.Register(context.Background(), RegisterRequest{Username: "a", Password: "p", Email: "a@example.com"}))
	assert.Equal(t, []notice{{ok: false, msg: "username taken"}}, f.notifier.all())

	assert.False(t, f.manager.Register(context.Background(), RegisterRequest{Username: "a", Password: "p", Email: "bad"}))
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestLogout(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{}`)

	for _, store := range []*session.MemoryStore{authenticatedStore(t), session.NewMemoryStore()} {
		f := newFixture(t, fb, store)
		f.manager.Logout()
		assert.False(t, f.manager.IsAuthenticated())
		assert.Nil(t, f.manager.User())
		assert.Equal(t, "", session.Token(store))
		_, ok := store.Get(session.KeyUser)
		assert.False(t, ok)
		assert.Equal(t, []notice{{ok: true, msg: MsgLoggedOut}}, f.notifier.all())
	}
	assert.Equal(t, int32(0), fb.calls.Load())
}

func TestHydrateFromStore(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{}`)
	f := newFixture(t, fb, authenticatedStore(t))

	assert.True(t, f.manager.IsAuthenticated())
	assert.Equal(t, "OLD", f.manager.Token())
	assert.Equal(t, "old", f.manager.User().Username)
	assert.Equal(t, int32(0), fb.calls.Load())
}

func TestRefreshProfileWithoutToken(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"data":{"username":"x"}}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	f.manager.RefreshProfile(context.Background())
	assert.Equal(t, int32(0), fb.calls.Load())
	assert.Nil(t, f.manager.User())
}

func TestRefreshProfileIsIdempotent(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"data":{"username":"old","email":"old@example.com"}}`)
	store := &countingStore{MemoryStore: authenticatedStore(t)}
	f := newFixture(t, fb, store)

	f.manager.RefreshProfile(context.Background())
	assert.Equal(t, int32(1), store.sets.Load())
	first, _ := store.Get(session.KeyUser)
	assert.JSONEq(t, `{"username":"old","email":"old@example.com"}`, first)

	f.manager.RefreshProfile(context.Background())
	assert.Equal(t, int32(1), store.sets.Load())
	second, _ := store.Get(session.KeyUser)
	assert.Equal(t, first, second)

	assert.Equal(t, "old@example.com", f.manager.User().Email)
	assert.Empty(t, f.notifier.all())
	path, _ := fb.last()
	assert.Equal(t, "/api/v1/user/info", path)
}

func TestRefreshProfileFailsSilently(t *testing.T) {
	fb := newBackend(t, http.StatusInternalServerError, `{"message":"boom"}`)
	store := authenticatedStore(t)
	f := newFixture(t, fb, store)

	f.manager.RefreshProfile(context.Background())
	assert.True(t, f.manager.IsAuthenticated())
	assert.Equal(t, "old", f.manager.User().Username)
	assert.Equal(t, "OLD", session.Token(store))
	assert.Empty(t, f.notifier.all())
}

func TestUnauthorizedEndsSession(t *testing.T) {
	fb := newBackend(t, http.StatusUnauthorized, `{"message":"token revoked"}`)
	store := authenticatedStore(t)
	f := newFixture(t, fb, store)

	f.manager.RefreshProfile(context.Background())
	assert.Equal(t, []string{httpclient.LoginRoute}, *f.routes)
	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.User())
	assert.Equal(t, "", session.Token(store))
	assert.Empty(t, f.notifier.all())
}

func TestStartRefreshesOnce(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{"code":200,"data":{"username":"old","email":"fresh@example.com"}}`)
	f := newFixture(t, fb, authenticatedStore(t))

	waitClosed(t, f.manager.Start(context.Background()))
	assert.Equal(t, int32(1), fb.calls.Load())
	assert.Equal(t, "fresh@example.com", f.manager.User().Email)

	waitClosed(t, f.manager.Start(context.Background()))
	assert.Equal(t, int32(1), fb.calls.Load())
}

func TestStartWithoutToken(t *testing.T) {
	fb := newBackend(t, http.StatusOK, `{}`)
	f := newFixture(t, fb, session.NewMemoryStore())

	waitClosed(t, f.manager.Start(context.Background()))
	assert.Equal(t, int32(0), fb.calls.Load())
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("start did not finish")
	}
}
