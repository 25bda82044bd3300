package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/authbridge/internal/gate"
	"github.com/dgellow/authbridge/internal/origin"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFetcher(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantUser *session.User
		wantErr  string
	}{
		{
			name:     "signed in",
			status:   http.StatusOK,
			body:     `{"user": {"email": "a@example.com", "refresh_token": "rt-1"}}`,
			wantUser: &session.User{Email: "a@example.com", RefreshToken: "rt-1"},
		},
		{name: "signed out", status: http.StatusOK, body: `{"user": null}`},
		{
			name:     "user without token",
			status:   http.StatusOK,
			body:     `{"user": {"email": "a@example.com"}}`,
			wantUser: &session.User{Email: "a@example.com"},
		},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantErr: "status 502: upstream down"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: "decoding session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			user, err := NewSessionFetcher(srv.Client(), srv.URL+"/api/session").FetchSession(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestSessionFetcher_FeedsPoller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user": {"refresh_token": "rt-2"}}`))
	}))
	defer srv.Close()

	store := session.NewMemoryStore(session.State{IsLoading: true})
	poller := session.NewPoller(store, NewSessionFetcher(srv.Client(), srv.URL), 1<<62)
	poller.Poll(context.Background())

	state := store.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "rt-2", state.User.RefreshToken)
	assert.True(t, state.Settled())
}

type recordingWindow struct {
	posts []protocol.Message
}

func (w *recordingWindow) IsEmbedded() bool { return true }
func (w *recordingWindow) Referrer() string { return "https://a.example/page" }
func (w *recordingWindow) PostToParent(msg protocol.Message, _ string) error {
	w.posts = append(w.posts, msg)
	return nil
}

func TestSessionFetcher_TokenlessUserKeepsSatelliteSignedIn(t *testing.T) {
	body := `{"user": {"email": "a@example.com", "refresh_token": "rt-1"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	store := session.NewMemoryStore(session.State{IsLoading: true})
	poller := session.NewPoller(store, NewSessionFetcher(srv.Client(), srv.URL), 1<<62)

	w := &recordingWindow{}
	c := gate.New(origin.NewAllowList(origin.MustParse("https://a.example")), w, store)
	require.Equal(t, gate.Ready, c.Start())
	defer c.Close()

	poller.Poll(context.Background())
	require.Len(t, w.posts, 1)

	body = `{"user": {"email": "a@example.com"}}`
	poller.Poll(context.Background())

	require.Len(t, w.posts, 1)
	assert.Equal(t, "rt-1", w.posts[0].Token())
}
