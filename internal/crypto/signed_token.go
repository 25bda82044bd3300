package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTokenFormat    = errors.New("malformed signed token")
	ErrTokenSignature = errors.New("signed token signature mismatch")
)

// TokenSigner signs JSON payloads for one purpose. The purpose is mixed
// into the MAC, so a value signed as a session cookie never verifies as
// anything else under the same key. Expiry belongs to the payload.
type TokenSigner struct {
	key     []byte
	purpose string
}

// NewTokenSigner creates a signer for purpose.
func NewTokenSigner(key []byte, purpose string) TokenSigner {
	return TokenSigner{key: key, purpose: purpose}
}

// Purpose returns the label the signer binds tokens to.
func (s TokenSigner) Purpose() string {
	return s.purpose
}

// Sign returns base64url(json(v)) "." signature.
func (s TokenSigner) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling %s payload: %w", s.purpose, err)
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." + s.mac(payload), nil
}

// Verify checks token and decodes its payload into v. Format and signature
// failures wrap ErrTokenFormat and ErrTokenSignature.
func (s TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" || strings.Contains(signature, ".") {
		return ErrTokenFormat
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenFormat, err)
	}
	if !ValidateSignedData(s.signedData(payload), signature, s.key) {
		return ErrTokenSignature
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenFormat, err)
	}
	return nil
}

func (s TokenSigner) mac(payload []byte) string {
	return SignData(s.signedData(payload), s.key)
}

func (s TokenSigner) signedData(payload []byte) string {
	return s.purpose + "\x00" + string(payload)
}
