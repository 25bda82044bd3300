package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/ioutil"
	"github.com/dgellow/authbridge/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Ensure OAuth2Store implements Store
var _ Store = (*OAuth2Store)(nil)

// OAuth2Config points an OAuth2Store at the auth service.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// RevokeURL is optional. When set, SignOut revokes the refresh token
	// there (RFC 7009) before clearing the local session.
	RevokeURL  string
	HTTPClient *http.Client
}

// OAuth2Store establishes sessions by redeeming a relayed refresh token with
// a refresh_token grant. The auth service decides whether the token is
// valid; the store never inspects it.
type OAuth2Store struct {
	*MemoryStore
	oauth      oauth2.Config
	revokeURL  string
	httpClient *http.Client
	inflight   singleflight.Group
}

// NewOAuth2Store creates a signed-out store.
func NewOAuth2Store(cfg OAuth2Config) (*OAuth2Store, error) {
	if cfg.TokenURL == "" {
		return nil, ErrNoTokenEndpoint
	}

	authStyle := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	return &OAuth2Store{
		MemoryStore: NewMemoryStore(State{}),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
		},
		revokeURL:  cfg.RevokeURL,
		httpClient: cfg.HTTPClient,
	}, nil
}

func (s *OAuth2Store) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// SignInWithToken redeems refreshToken. Concurrent calls with the same
// token share one grant.
func (s *OAuth2Store) SignInWithToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrEmptyToken
	}

	_, err, shared := s.inflight.Do(refreshToken, func() (any, error) {
		return nil, s.redeem(ctx, refreshToken)
	})
	if shared {
		log.LogTraceWithFields("session", "Joined in-flight sign-in", map[string]any{
			"token": crypto.Fingerprint(refreshToken),
		})
	}
	return err
}

func (s *OAuth2Store) redeem(ctx context.Context, refreshToken string) error {
	prev := s.State().User
	s.Set(State{IsLoading: true, User: prev})

	src := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		err = fmt.Errorf("refresh token grant: %w", err)
		s.Set(State{Err: err, User: prev})
		return err
	}

	user := &User{RefreshToken: tok.RefreshToken}
	if user.RefreshToken == "" {
		user.RefreshToken = refreshToken
	}
	if email, ok := tok.Extra("email").(string); ok {
		user.Email = email
	}

	s.Set(State{User: user})
	log.LogDebugWithFields("session", "Signed in with relayed token", map[string]any{
		"token":   crypto.Fingerprint(refreshToken),
		"rotated": user.RefreshToken != refreshToken,
	})
	return nil
}

// SignOut clears the local session. If a revocation endpoint is configured
// the refresh token is revoked first; a failed revocation is returned but
// the local session is cleared regardless.
func (s *OAuth2Store) SignOut(ctx context.Context) error {
	var revokeErr error
	if user := s.State().User; user != nil && s.revokeURL != "" {
		revokeErr = s.revoke(ctx, user.RefreshToken)
	}
	s.Set(State{})
	return revokeErr
}

func (s *OAuth2Store) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	if s.oauth.ClientSecret == "" {
		form.Set("client_id", s.oauth.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.oauth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(s.oauth.ClientID), url.QueryEscape(s.oauth.ClientSecret))
	}

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit)
		return fmt.Errorf("revoking refresh token: unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}
