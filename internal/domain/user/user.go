// Package user defines the locally mirrored user and the authenticated
// session carried through a request.
package user

import (
	"errors"
	"net/mail"
	"time"
)

// User is the local mirror of an identity-store account. The ID is owned by
// the identity store.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the authenticated caller. Token is the bearer credential the
// caller presented; it is forwarded to the identity store.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"-"`
}

// Validate checks that the session identifies a user.
func (s *Session) Validate() error {
	if s == nil || s.UserID == "" {
		return errors.New("session has no user id")
	}
	if s.Email != "" {
		if _, err := mail.ParseAddress(s.Email); err != nil {
			return errors.New("invalid email format")
		}
	}
	return nil
}

// User returns the local user row described by the session.
func (s *Session) User() User {
	return User{ID: s.UserID, Email: s.Email, Name: s.Name}
}
