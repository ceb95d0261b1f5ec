// Package domain holds the value types shared by the session layer:
// users, rooms, messages and the call lifecycle.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const MaxUsernameLen = 64

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// User is a participant identity. The username comes from the verified
// bearer token, never from user input, but the hub still bounds it
// before keying sessions on it.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser validates the token-supplied username and assigns a session
// id. The id is per connection, not a stable account id.
func NewUser(username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{ID: UserID(uuid.NewString()), Username: username}, nil
}
