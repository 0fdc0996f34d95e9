// Package auth owns the authentication lifecycle of the client: sign-in,
// sign-up, sign-out and the best-effort profile refresh. The Manager keeps an
// in-memory copy of the session and writes it through to the session store
// that the HTTP client reads its bearer token from.
package auth

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/common/validate"
	"github.com/tansive/crmctl/internal/session"
	"github.com/tidwall/gjson"
)

const (
	loginPath    = "auth/login"
	registerPath = "auth/register"
	userInfoPath = "user/info"
)

const (
	MsgLoginSuccess    = "login successful"
	MsgLoginFailed     = "login failed"
	MsgRegisterSuccess = "registration successful, please log in"
	MsgRegisterFailed  = "registration failed"
	MsgLoggedOut       = "logged out"
)

// Notifier receives the one-line outcome of every user-initiated operation.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Credentials are the inputs of Login.
type Credentials struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest are the inputs of Register.
type RegisterRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// Manager is either Anonymous (no token) or Authenticated (token and user).
type Manager struct {
	client   httpclient.HTTPClientInterface
	store    session.Store
	notifier Notifier

	mu    sync.RWMutex
	token string
	user  *session.User

	inflight  atomic.Int32
	startOnce sync.Once
}

// NewManager creates a manager and hydrates it from the store. The stored
// profile is trusted until a refresh says otherwise.
func NewManager(client httpclient.HTTPClientInterface, store session.Store, notifier Notifier) *Manager {
	m := &Manager{
		client:   client,
		store:    store,
		notifier: notifier,
	}
	m.Reload()
	return m
}

// Reload replaces the in-memory session with what the store holds. It is the
// counterpart of a full reset after the client tore the session down.
func (m *Manager) Reload() {
	user, err := session.LoadUser(m.store)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable stored user")
		user = nil
	}
	token := session.Token(m.store)

	m.mu.Lock()
	m.token = token
	m.user = user
	m.mu.Unlock()
}

// Start triggers a single asynchronous profile refresh when a token is held.
// The returned channel is closed once that refresh has finished, or at once
// when there is nothing to do. Only the first call refreshes.
func (m *Manager) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	first := false
	m.startOnce.Do(func() { first = true })
	if !first || !m.IsAuthenticated() {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		m.RefreshProfile(ctx)
	}()
	return done
}

// IsAuthenticated reports whether a token is held in memory.
func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// Token returns the token held in memory.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns a copy of the current profile, or nil when anonymous.
func (m *Manager) User() *session.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Loading reports whether a login or register call is in flight.
func (m *Manager) Loading() bool {
	return m.inflight.Load() > 0
}

// Login signs in and persists the session. It reports the outcome through the
// notifier and returns whether it succeeded; it never returns an error.
func (m *Manager) Login(ctx context.Context, creds Credentials) bool {
	if err := validate.Struct(creds); err != nil {
		m.notifier.Error(err.Error())
		return false
	}

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	resp, err := m.client.Post(ctx, loginPath, creds)
	if err != nil {
		m.notifier.Error(httpclient.MessageOf(err, MsgLoginFailed))
		return false
	}

	data := resp.Data()
	token := data.Get("token").String()
	if token == "" {
		token = data.Get("access_token").String()
	}
	if token == "" {
		log.Debug().Msg("login response carried no token")
		m.notifier.Error(MsgLoginFailed)
		return false
	}

	user := &session.User{Username: creds.Username}
	if u := data.Get("user"); u.IsObject() {
		decoded, err := decodeUser(u)
		if err != nil {
			log.Debug().Err(err).Msg("unusable user in login response")
		} else {
			user = decoded
		}
	}

	if err := session.Persist(m.store, token, user); err != nil {
		log.Error().Err(err).Msg("unable to persist session")
		m.notifier.Error(MsgLoginFailed)
		return false
	}

	m.mu.Lock()
	m.token = token
	m.user = user
	m.mu.Unlock()

	m.notifier.Success(MsgLoginSuccess)
	return true
}

// Register creates an account. It does not sign the new account in.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) bool {
	if err := validate.Struct(req); err != nil {
		m.notifier.Error(err.Error())
		return false
	}

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	if _, err := m.client.Post(ctx, registerPath, req); err != nil {
		m.notifier.Error(httpclient.MessageOf(err, MsgRegisterFailed))
		return false
	}
	m.notifier.Success(MsgRegisterSuccess)
	return true
}

// Logout clears the session in the store and in memory. It always succeeds.
func (m *Manager) Logout() {
	if err := session.Clear(m.store); err != nil {
		log.Error().Err(err).Msg("unable to clear stored session")
	}
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()
	m.notifier.Success(MsgLoggedOut)
}

// RefreshProfile fetches the current profile and overwrites the cached one.
// Any failure leaves the session as it was and is not reported.
func (m *Manager) RefreshProfile(ctx context.Context) {
	if !m.IsAuthenticated() {
		return
	}

	resp, err := m.client.Get(ctx, userInfoPath, nil)
	if err != nil {
		log.Debug().Err(err).Msg("profile refresh failed")
		return
	}
	data := resp.Data()
	if !data.IsObject() {
		return
	}
	user, err := decodeUser(data)
	if err != nil {
		log.Debug().Err(err).Msg("profile refresh returned an unusable profile")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// signed out while the request was in flight
	if m.token == "" {
		return
	}
	m.user = user
	if _, err := session.SaveUser(m.store, user); err != nil {
		log.Debug().Err(err).Msg("unable to store refreshed profile")
	}
}

func decodeUser(r gjson.Result) (*session.User, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(r.Raw), &raw); err != nil {
		return nil, err
	}
	return session.DecodeUser(raw)
}
