// Package session is the client-side view of the external auth service: an
// observable current session plus sign-in-with-token and sign-out. The
// bridge depends only on the Store interface; token issuance and
// verification stay with the auth service.
package session

import (
	"context"
	"errors"
)

var (
	// ErrEmptyToken is returned when signing in with an empty token.
	ErrEmptyToken = errors.New("refresh token is empty")

	// ErrNoTokenEndpoint is returned when an OAuth2Store is built without
	// a token URL.
	ErrNoTokenEndpoint = errors.New("token endpoint is required")
)

// User is the signed-in principal. RefreshToken is opaque.
type User struct {
	Email        string `json:"email,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// State is a snapshot of the session. The zero value is signed out and
// settled.
type State struct {
	IsLoading bool
	Err       error
	User      *User
}

// Settled reports whether the state is neither loading nor in error.
func (s State) Settled() bool {
	return !s.IsLoading && s.Err == nil
}

// Equal compares two snapshots by value. Errors compare by message.
func (s State) Equal(other State) bool {
	if s.IsLoading != other.IsLoading {
		return false
	}
	if (s.Err == nil) != (other.Err == nil) {
		return false
	}
	if s.Err != nil && s.Err.Error() != other.Err.Error() {
		return false
	}
	if (s.User == nil) != (other.User == nil) {
		return false
	}
	return s.User == nil || *s.User == *other.User
}

// Store is the contract the bridge needs from the auth service's client.
type Store interface {
	// State returns the current snapshot.
	State() State

	// Subscribe calls fn with the current state right away and then after
	// every change, until the returned function is called. fn must not
	// change the store.
	Subscribe(fn func(State)) (unsubscribe func())

	SignInWithToken(ctx context.Context, refreshToken string) error
	SignOut(ctx context.Context) error
}
