package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	fakeAuthPort = "9091"
	fakeAuthURL  = "http://localhost:" + fakeAuthPort
)

// authServer is the fake auth service shared by all tests.
var authServer *FakeAuthServer

// FakeAuthServer is the external auth service the satellite redeems relayed
// refresh tokens with. It knows a fixed set of tokens and records revocations.
type FakeAuthServer struct {
	server *http.Server

	mu      sync.Mutex
	tokens  map[string]string // refresh token -> email
	revoked []string
	grants  int
}

// NewFakeAuthServer creates a fake auth service
func NewFakeAuthServer(port string) *FakeAuthServer {
	s := &FakeAuthServer{tokens: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "unsupported_grant_type"})
			return
		}

		refreshToken := r.FormValue("refresh_token")
		s.mu.Lock()
		email, ok := s.tokens[refreshToken]
		s.grants++
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "Unknown refresh token",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + refreshToken,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": refreshToken,
			"email":         email,
		})
	})

	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.revoked = append(s.revoked, r.FormValue("token"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start starts the fake auth service
func (s *FakeAuthServer) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop stops the fake auth service
func (s *FakeAuthServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Issue registers a refresh token as valid for email.
func (s *FakeAuthServer) Issue(refreshToken, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[refreshToken] = email
}

// Revoked returns the tokens revoked so far.
func (s *FakeAuthServer) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// Grants returns the number of refresh token grants attempted.
func (s *FakeAuthServer) Grants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants
}
