// Package browserauth keeps the origin site's signed-in user in a signed
// cookie. The gate reads it back through the session endpoint.
package browserauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/authbridge/internal/cookie"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/session"
)

const sessionPurpose = "authbridge-session"

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
)

// SessionCookie represents the data stored in signed browser session cookies
type SessionCookie struct {
	Email        string    `json:"email,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	Expires      time.Time `json:"expires"`
}

// Expired reports whether the cookie is past its expiry at now.
func (c SessionCookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// User converts the cookie into the session user it carries.
func (c SessionCookie) User() *session.User {
	return &session.User{Email: c.Email, RefreshToken: c.RefreshToken}
}

// Sessions reads and writes session cookies.
type Sessions struct {
	signer crypto.TokenSigner
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a cookie codec signing with key. Cookies live for ttl.
func NewSessions(key []byte, ttl time.Duration) *Sessions {
	return &Sessions{
		signer: crypto.NewTokenSigner(key, sessionPurpose),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue sets the session cookie for user.
func (s *Sessions) Issue(w http.ResponseWriter, user session.User) error {
	if user.RefreshToken == "" {
		return session.ErrEmptyToken
	}
	value, err := s.signer.Sign(SessionCookie{
		Email:        user.Email,
		RefreshToken: user.RefreshToken,
		Expires:      s.now().Add(s.ttl),
	})
	if err != nil {
		return fmt.Errorf("signing session cookie: %w", err)
	}
	cookie.SetSession(w, value, s.ttl)
	return nil
}

// Read returns the user in the request's session cookie. A missing cookie
// is ErrNoSession; a tampered or expired one is ErrInvalidSession.
func (s *Sessions) Read(r *http.Request) (*session.User, error) {
	value, err := cookie.GetSession(r)
	if err != nil || value == "" {
		return nil, ErrNoSession
	}

	var data SessionCookie
	if err := s.signer.Verify(value, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if data.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidSession)
	}
	if data.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrInvalidSession)
	}
	return data.User(), nil
}

// Clear removes the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	cookie.ClearSession(w)
}
