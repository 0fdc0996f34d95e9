// Package session holds the durable client-side session state: the bearer
// token and the cached user profile. The state lives behind a small key/value
// Store so that the HTTP client and the auth manager can share one instance.
package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anand-gl/jsoncanonicalizer"
)

const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Store is a durable string key/value store. Implementations must be safe for
// concurrent use. Set writes all given pairs in a single save.
type Store interface {
	Get(key string) (string, bool)
	Set(values map[string]string) error
	Remove(keys ...string) error
}

// Token returns the stored bearer token, or an empty string.
func Token(s Store) string {
	t, _ := s.Get(KeyToken)
	return strings.TrimSpace(t)
}

// LoadUser returns the cached user profile, or nil when none is stored.
func LoadUser(s Store) (*User, error) {
	raw, ok := s.Get(KeyUser)
	if !ok || raw == "" {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("unable to parse stored user: %w", err)
	}
	return &u, nil
}

// Persist writes token and user together.
func Persist(s Store, token string, u *User) error {
	raw, err := encodeUser(u)
	if err != nil {
		return err
	}
	return s.Set(map[string]string{
		KeyToken: token,
		KeyUser:  raw,
	})
}

// SaveUser overwrites the cached profile. It reports false without writing
// when the stored profile is already identical, ignoring key order and
// whitespace.
func SaveUser(s Store, u *User) (bool, error) {
	raw, err := encodeUser(u)
	if err != nil {
		return false, err
	}
	if current, ok := s.Get(KeyUser); ok && sameJSON(current, raw) {
		return false, nil
	}
	if err := s.Set(map[string]string{KeyUser: raw}); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes token and user.
func Clear(s Store) error {
	return s.Remove(KeyToken, KeyUser)
}

func encodeUser(u *User) (string, error) {
	if u == nil {
		return "", fmt.Errorf("user is required")
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("unable to encode user: %w", err)
	}
	b, err = jsoncanonicalizer.Transform(b)
	if err != nil {
		return "", fmt.Errorf("unable to encode user: %w", err)
	}
	return string(b), nil
}

// sameJSON compares stored against a canonical encoding.
func sameJSON(stored, canonical string) bool {
	c, err := jsoncanonicalizer.Transform([]byte(stored))
	return err == nil && string(c) == canonical
}
