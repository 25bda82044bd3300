// Package protocol defines the cross-window message exchanged between the
// auth gate iframe and the satellite page that embeds it.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Type tags every bridge message. Payloads without it are not ours.
const Type = "instant-auth"

var (
	// ErrNotBridgeMessage is returned for payloads that are absent, not a
	// JSON object, or not tagged with Type.
	ErrNotBridgeMessage = errors.New("not an auth bridge message")

	// ErrMalformedToken is returned when refreshToken is neither null nor a
	// non-empty string.
	ErrMalformedToken = errors.New("malformed refresh token")
)

// Message is the wire form. A nil RefreshToken means signed out and is
// always encoded as an explicit null. Sign-in messages always carry email,
// null when unknown; sign-out messages carry none.
type Message struct {
	Type         string  `json:"type"`
	RefreshToken *string `json:"refreshToken"`
	Email        *string `json:"email,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.RefreshToken == nil {
		type signOut Message
		return json.Marshal(signOut(m))
	}
	return json.Marshal(struct {
		Type         string  `json:"type"`
		RefreshToken *string `json:"refreshToken"`
		Email        *string `json:"email"`
	}{m.Type, m.RefreshToken, m.Email})
}

// SignIn builds the message announcing a signed-in session.
func SignIn(refreshToken, email string) Message {
	m := Message{Type: Type, RefreshToken: &refreshToken}
	if email != "" {
		m.Email = &email
	}
	return m
}

// SignOut builds the message announcing that no user is signed in.
func SignOut() Message {
	return Message{Type: Type}
}

// IsSignOut reports whether m carries a null token.
func (m Message) IsSignOut() bool {
	return m.RefreshToken == nil
}

// Token returns the refresh token, or "" for a sign-out message.
func (m Message) Token() string {
	if m.RefreshToken == nil {
		return ""
	}
	return *m.RefreshToken
}

// EmailAddress returns the email, or "" when absent or null.
func (m Message) EmailAddress() string {
	if m.Email == nil {
		return ""
	}
	return *m.Email
}

// Payload is a decoded, validated incoming message.
type Payload struct {
	SignOut      bool
	RefreshToken string
	Email        string
}

var jsonNull = []byte("null")

// Decode validates raw message data. Callers must check the sender origin
// before decoding; Decode only looks at shape.
func Decode(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Payload{}, ErrNotBridgeMessage
	}

	var fields struct {
		Type         json.RawMessage `json:"type"`
		RefreshToken json.RawMessage `json:"refreshToken"`
		Email        json.RawMessage `json:"email"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, ErrNotBridgeMessage
	}

	var typ string
	if err := json.Unmarshal(fields.Type, &typ); err != nil || typ != Type {
		return Payload{}, ErrNotBridgeMessage
	}

	// Absent and null are different: only an explicit null signs out.
	if fields.RefreshToken == nil {
		return Payload{}, ErrMalformedToken
	}
	if bytes.Equal(fields.RefreshToken, jsonNull) {
		return Payload{SignOut: true}, nil
	}

	var token string
	if err := json.Unmarshal(fields.RefreshToken, &token); err != nil || token == "" {
		return Payload{}, ErrMalformedToken
	}

	p := Payload{RefreshToken: token}
	if len(fields.Email) > 0 && !bytes.Equal(fields.Email, jsonNull) {
		// A non-string email is informational only and does not invalidate
		// the token.
		_ = json.Unmarshal(fields.Email, &p.Email)
	}
	return p, nil
}
