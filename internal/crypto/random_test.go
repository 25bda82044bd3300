package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64 encoding of 32 bytes should be at least 40 chars
	assert.GreaterOrEqual(t, len(token), 40)
}

func TestSignData(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!!")
	sig := SignData("payload", key)

	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("payload2", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("other-key")))
	assert.False(t, ValidateSignedData("payload", "", key))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("refresh-token-a")
	b := Fingerprint("refresh-token-b")

	assert.Len(t, a, 12)
	assert.Equal(t, a, Fingerprint("refresh-token-a"))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "refresh")
	assert.Empty(t, Fingerprint(""))
}

func TestTokenSigner(t *testing.T) {
	signer := NewTokenSigner([]byte("test-signing-key-32-bytes-long!!"), "session")

	type payload struct {
		Email string `json:"email"`
	}

	token, err := signer.Sign(payload{Email: "user@a.example"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, signer.Verify(token, &got))
	assert.Equal(t, "user@a.example", got.Email)

	tests := []struct {
		name    string
		signer  TokenSigner
		token   string
		wantErr error
	}{
		{
			name:    "other key",
			signer:  NewTokenSigner([]byte("another-signing-key-32-bytes!!!!"), "session"),
			token:   token,
			wantErr: ErrTokenSignature,
		},
		{
			name:    "other purpose",
			signer:  NewTokenSigner([]byte("test-signing-key-32-bytes-long!!"), "csrf"),
			token:   token,
			wantErr: ErrTokenSignature,
		},
		{name: "no separator", signer: signer, token: "not-a-token", wantErr: ErrTokenFormat},
		{name: "extra part", signer: signer, token: token + ".x", wantErr: ErrTokenFormat},
		{name: "bad base64", signer: signer, token: "!!!." + strings.SplitN(token, ".", 2)[1], wantErr: ErrTokenFormat},
		{name: "tampered signature", signer: signer, token: token + "x", wantErr: ErrTokenSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			assert.ErrorIs(t, tt.signer.Verify(tt.token, &got), tt.wantErr)
		})
	}
}

func TestTokenSigner_NonJSONPayload(t *testing.T) {
	signer := NewTokenSigner([]byte("test-signing-key-32-bytes-long!!"), "session")
	token, err := signer.Sign("just a string")
	require.NoError(t, err)

	var got struct{ Email string }
	assert.ErrorIs(t, signer.Verify(token, &got), ErrTokenFormat)
	assert.Equal(t, "session", signer.Purpose())
}

func TestCSRFProtection(t *testing.T) {
	csrf := NewCSRFProtection([]byte("test-signing-key-32-bytes-long!!"), time.Hour)

	token, err := csrf.Generate()
	require.NoError(t, err)
	assert.True(t, csrf.Validate(token))
	assert.False(t, csrf.Validate(token+"x"))
	assert.False(t, csrf.Validate("a:b"))
	assert.False(t, csrf.Validate("nonce:notanumber:sig"))

	expired := NewCSRFProtection([]byte("test-signing-key-32-bytes-long!!"), -time.Second)
	token, err = expired.Generate()
	require.NoError(t, err)
	assert.False(t, expired.Validate(token))
}

func TestCSRFProtection_ValidatePair(t *testing.T) {
	csrf := NewCSRFProtection([]byte("test-signing-key-32-bytes-long!!"), time.Hour)
	token, err := csrf.Generate()
	require.NoError(t, err)
	other, err := csrf.Generate()
	require.NoError(t, err)

	assert.True(t, csrf.ValidatePair(token, token))
	assert.False(t, csrf.ValidatePair(token, other))
	assert.False(t, csrf.ValidatePair("", ""))
	assert.False(t, csrf.ValidatePair(token, ""))

	forged := NewCSRFProtection([]byte("another-signing-key-32-bytes!!!!"), time.Hour)
	forgedToken, err := forged.Generate()
	require.NoError(t, err)
	assert.False(t, csrf.ValidatePair(forgedToken, forgedToken))
}
