package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/authbridge/internal/ioutil"
	"github.com/dgellow/authbridge/internal/session"
)

var _ session.Fetcher = (*SessionFetcher)(nil)

// SessionFetcher reads the origin session from the same-origin session
// endpoint. Under js/wasm net/http goes through the page's fetch, which
// sends the session cookie along.
type SessionFetcher struct {
	client *http.Client
	url    string
}

// NewSessionFetcher creates a fetcher for url. A nil client uses
// http.DefaultClient.
func NewSessionFetcher(client *http.Client, url string) *SessionFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SessionFetcher{client: client, url: url}
}

// FetchSession implements session.Fetcher.
func (f *SessionFetcher) FetchSession(ctx context.Context) (*session.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching session: status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit))
	}

	var body struct {
		User *session.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return body.User, nil
}
