// Package gate runs inside the hidden iframe served by the origin site. It
// checks that it is embedded by a trusted satellite and mirrors the local
// session to that parent window.
package gate

import (
	"sync"

	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/session"
)

// State is the embedding verdict. It leaves Checking once and never
// changes again.
type State int

const (
	Checking State = iota
	Ready
	Denied
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Ready:
		return "ready"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Window is the part of the browser window the gate uses.
type Window interface {
	// IsEmbedded reports whether the page has a parent window other than
	// itself.
	IsEmbedded() bool
	Referrer() string
	// PostToParent delivers msg to the parent window only if the parent is
	// currently at targetOrigin.
	PostToParent(msg protocol.Message, targetOrigin string) error
}

type sentKind int

// A fresh gate counts as having sent a sign-out, so a signed-out user on
// first load produces no message.
const (
	sentSignOut sentKind = iota
	sentToken
)

// Option configures a Controller
type Option func(*Controller)

// WithStatusHook sets a function called with the page's status line
// whenever it may have changed.
func WithStatusHook(fn func(string)) Option {
	return func(c *Controller) {
		c.onStatus = fn
	}
}

// Controller is the gate page's state. One per page.
type Controller struct {
	allowed  origin.AllowList
	window   Window
	store    session.Store
	onStatus func(string)

	mountOnce sync.Once

	mu          sync.Mutex
	state       State
	target      origin.Origin
	lastKind    sentKind
	lastToken   string
	unsubscribe func()
}

// New creates a Controller in the Checking state.
func New(allowed origin.AllowList, window Window, store session.Store, opts ...Option) *Controller {
	c := &Controller{
		allowed:  allowed,
		window:   window,
		store:    store,
		lastKind: sentSignOut,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the embedding verdict.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the bound parent origin, zero unless Ready.
func (c *Controller) Target() origin.Origin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Mount runs the embedding check. It fails closed and only runs once; the
// origin it binds is the only one the gate will ever post to.
func (c *Controller) Mount() State {
	c.mountOnce.Do(func() {
		target, reason := c.check()

		c.mu.Lock()
		if reason != "" {
			c.state = Denied
		} else {
			c.state = Ready
			c.target = target
		}
		c.mu.Unlock()

		if reason != "" {
			log.LogWarnWithFields("gate", "Embedding denied", map[string]any{
				"reason": reason,
			})
			return
		}
		log.LogInfoWithFields("gate", "Embedding accepted", map[string]any{
			"parent_origin": target.String(),
		})
	})
	return c.State()
}

func (c *Controller) check() (origin.Origin, string) {
	if !c.window.IsEmbedded() {
		return origin.Origin{}, "not embedded"
	}

	referrer := c.window.Referrer()
	if referrer == "" {
		return origin.Origin{}, "empty referrer"
	}

	parent, err := origin.FromReferrer(referrer)
	if err != nil {
		return origin.Origin{}, "unparseable referrer"
	}
	if !c.allowed.Contains(parent) {
		return origin.Origin{}, "parent origin not allowed: " + parent.String()
	}
	return parent, ""
}

// Relay forwards auth to the parent when it differs from what was last
// sent. Loading and error states are skipped so transient state never
// reaches the satellite.
func (c *Controller) Relay(auth session.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready || c.target.IsZero() {
		return
	}
	if !auth.Settled() {
		return
	}

	if auth.User == nil {
		if c.lastKind == sentSignOut {
			return
		}
		if c.post(protocol.SignOut()) {
			c.lastKind, c.lastToken = sentSignOut, ""
		}
		return
	}

	token := auth.User.RefreshToken
	if token == "" {
		return
	}
	if c.lastKind == sentToken && c.lastToken == token {
		return
	}
	if c.post(protocol.SignIn(token, auth.User.Email)) {
		c.lastKind, c.lastToken = sentToken, token
	}
}

// post must be called with c.mu held.
func (c *Controller) post(msg protocol.Message) bool {
	target := c.target.String()
	if err := c.window.PostToParent(msg, target); err != nil {
		log.LogErrorWithFields("gate", "Failed to post to parent", map[string]any{
			"target": target,
			"error":  err.Error(),
		})
		return false
	}
	log.LogDebugWithFields("gate", "Relayed auth state", map[string]any{
		"target":   target,
		"sign_out": msg.IsSignOut(),
		"token":    crypto.Fingerprint(msg.Token()),
	})
	return true
}

// Start mounts the gate and, when Ready, subscribes the relay to the
// store. A denied gate only reports its status.
func (c *Controller) Start() State {
	state := c.Mount()
	if state != Ready {
		c.report(c.store.State())
		return state
	}

	unsubscribe := c.store.Subscribe(func(auth session.State) {
		c.Relay(auth)
		c.report(auth)
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return state
}

// Close stops observing the store.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) report(auth session.State) {
	if c.onStatus != nil {
		c.onStatus(c.StatusText(auth))
	}
}

// StatusText is the line shown on the gate page.
func (c *Controller) StatusText(auth session.State) string {
	switch c.State() {
	case Checking:
		return "Checking embedding..."
	case Denied:
		return "Blocked: load this gate from a trusted satellite origin."
	}
	switch {
	case auth.IsLoading:
		return "Waiting for login state..."
	case auth.Err != nil:
		return "Auth error: " + auth.Err.Error()
	case auth.User == nil, auth.User.RefreshToken == "":
		return "Iframe ready. Waiting for the user to sign in."
	default:
		return "Iframe ready. Token sent to satellite."
	}
}
