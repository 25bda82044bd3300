// Package discovery publishes the gate's settings at a well-known path and
// lets a satellite check, at startup, that the gate will accept it.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgellow/authbridge/internal/ioutil"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/rs/cors"
)

// Path is where the gate publishes its Document.
const Path = "/.well-known/auth-bridge"

var ErrNotFound = errors.New("discovery document not found")

// Document describes a gate.
type Document struct {
	GateURL        string   `json:"gateURL"`
	AllowedOrigins []string `json:"allowedOrigins"`
	MessageType    string   `json:"messageType"`
}

// NewDocument builds the Document for a gate at gateURL.
func NewDocument(gateURL string, allowed origin.AllowList) Document {
	return Document{
		GateURL:        gateURL,
		AllowedOrigins: allowed.Strings(),
		MessageType:    protocol.Type,
	}
}

// NewHandler serves doc. Cross-origin reads are allowed only for the
// satellites in doc.AllowedOrigins.
func NewHandler(doc Document) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: doc.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         3600,
	})
	return c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = jsonwriter.Write(w, doc)
	}))
}

// URL returns the discovery URL on the gate's origin.
func URL(gateURL string) (string, error) {
	gate, err := origin.Parse(gateURL)
	if err != nil {
		return "", err
	}
	return url.JoinPath(gate.String(), Path)
}

// Fetch retrieves the Document for gateURL once.
func Fetch(ctx context.Context, client *http.Client, gateURL string) (*Document, error) {
	u, err := URL(gateURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d: %s", u, resp.StatusCode, ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}
	return &doc, nil
}

// Check compares a gate's Document against this satellite. Each returned
// string is a problem that will stop the bridge from working.
func Check(doc *Document, gateURL string, self origin.Origin) []string {
	var problems []string

	if doc.MessageType != "" && doc.MessageType != protocol.Type {
		problems = append(problems, fmt.Sprintf("gate speaks message type %q, expected %q", doc.MessageType, protocol.Type))
	}

	allowed, err := origin.ParseAllowListEntries(doc.AllowedOrigins)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("gate publishes an invalid allow-list: %v", err))
	case !allowed.Contains(self):
		problems = append(problems, fmt.Sprintf("satellite origin %s is not in the gate's allow-list", self))
	}

	if want, err := origin.Parse(gateURL); err == nil {
		if got, err := origin.Parse(doc.GateURL); err != nil || !got.Equal(want) {
			problems = append(problems, fmt.Sprintf("gate reports URL %q on a different origin than %s", doc.GateURL, want))
		}
	}
	return problems
}

// Prober checks a gate from the satellite side, retrying while the gate is
// unreachable.
type Prober struct {
	client     *http.Client
	gateURL    string
	self       origin.Origin
	maxElapsed time.Duration
}

// NewProber creates a Prober for the gate at gateURL. It gives up after
// maxElapsed.
func NewProber(client *http.Client, gateURL string, self origin.Origin, maxElapsed time.Duration) *Prober {
	return &Prober{
		client:     client,
		gateURL:    gateURL,
		self:       self,
		maxElapsed: maxElapsed,
	}
}

func (p *Prober) backOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      p.maxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Probe fetches the gate's Document and returns the problems Check finds.
// A missing document or a malformed gate URL is not retried.
func (p *Prober) Probe(ctx context.Context) ([]string, error) {
	if _, err := origin.Parse(p.gateURL); err != nil {
		return nil, fmt.Errorf("gate URL: %w", err)
	}

	var doc *Document
	operation := func() error {
		var err error
		doc, err = Fetch(ctx, p.client, p.gateURL)
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.LogDebugWithFields("discovery", "Gate not reachable yet, retrying", map[string]any{
			"gate_url": p.gateURL,
			"retry_in": next.String(),
			"error":    err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return Check(doc, p.gateURL, p.self), nil
}

// Run probes once and logs the outcome. It never fails: the satellite page
// works without the gate, only cross-origin sign-in does not.
func (p *Prober) Run(ctx context.Context) error {
	problems, err := p.Probe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.LogWarnWithFields("discovery", "Could not verify auth gate", map[string]any{
				"gate_url": p.gateURL,
				"error":    err.Error(),
			})
		}
		return nil
	}
	for _, problem := range problems {
		log.LogWarnWithFields("discovery", "Auth gate will not accept this satellite", map[string]any{
			"gate_url": p.gateURL,
			"problem":  problem,
		})
	}
	if len(problems) == 0 {
		log.LogInfoWithFields("discovery", "Auth gate verified", map[string]any{
			"gate_url": p.gateURL,
		})
	}
	return nil
}
