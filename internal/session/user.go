package session

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// User is the signed-in user's profile. Fields the client does not know about
// are kept in Extra and written back verbatim.
type User struct {
	Username string         `mapstructure:"username"`
	Email    string         `mapstructure:"email"`
	Extra    map[string]any `mapstructure:",remain"`
}

// DecodeUser builds a User from a decoded JSON object.
func DecodeUser(raw map[string]any) (*User, error) {
	var u User
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &u,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid user profile: %w", err)
	}
	if len(u.Extra) == 0 {
		u.Extra = nil
	}
	return &u, nil
}

func (u User) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+2)
	for k, v := range u.Extra {
		m[k] = v
	}
	m["username"] = u.Username
	if u.Email != "" {
		m["email"] = u.Email
	}
	return json.Marshal(m)
}

func (u *User) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d, err := DecodeUser(m)
	if err != nil {
		return err
	}
	*u = *d
	return nil
}
