// Package bridge runs in the satellite page. It mounts the hidden gate
// iframe, accepts auth messages only from the gate's origin, and applies
// them to the satellite's own session.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/session"
)

const (
	// FrameAttribute marks the gate iframe so a second mount finds it.
	FrameAttribute = "data-auth-gate"
	FrameTitle     = "Origin Auth Gate"

	DefaultCallTimeout = 30 * time.Second
)

// Event is one incoming cross-window message. Origin is the browser-supplied
// sender origin; Data is the message payload as JSON.
type Event struct {
	Origin string
	Data   json.RawMessage
}

// Document is the part of the DOM the bridge touches.
type Document interface {
	// Loading reports whether DOMContentLoaded has yet to fire.
	Loading() bool
	// OnContentLoaded runs fn once when the document becomes interactive.
	OnContentLoaded(fn func())
	HasGateFrame() bool
	// AppendGateFrame adds a hidden iframe tagged with FrameAttribute.
	AppendGateFrame(src, title string) error
}

// MessageSource delivers window message events.
type MessageSource interface {
	AddMessageListener(fn func(Event))
}

type appliedKind int

// A fresh bridge starts as signed out. appliedUnknown is only reached by
// rolling back a failed sign-in, after which any message is applied.
const (
	appliedUnknown appliedKind = iota
	appliedSignOut
	appliedToken
)

// Option configures a Controller
type Option func(*Controller)

// WithCallTimeout bounds each sign-in and sign-out call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.callTimeout = d
	}
}

// Controller is the satellite side of the bridge.
type Controller struct {
	gateURL     string
	store       session.Store
	doc         Document
	messages    MessageSource
	callTimeout time.Duration

	initOnce sync.Once

	mu         sync.Mutex
	enabled    bool
	gateOrigin origin.Origin
	lastKind   appliedKind
	lastToken  string

	queueMu  sync.Mutex
	queue    []func(context.Context)
	draining bool
	pending  sync.WaitGroup
}

// New creates an uninitialized Controller. Nothing happens until Init.
func New(gateURL string, store session.Store, doc Document, messages MessageSource, opts ...Option) *Controller {
	c := &Controller{
		gateURL:     gateURL,
		store:       store,
		doc:         doc,
		messages:    messages,
		callTimeout: DefaultCallTimeout,
		lastKind:    appliedSignOut,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init resolves the gate origin, mounts the iframe and starts listening.
// It runs once; later calls report the first outcome. An unusable gate
// URL disables the bridge instead of failing the page.
func (c *Controller) Init() bool {
	c.initOnce.Do(func() {
		gateOrigin, err := origin.Parse(c.gateURL)
		if err != nil {
			log.LogErrorWithFields("bridge", "Auth bridge disabled: invalid gate URL", map[string]any{
				"gate_url": c.gateURL,
				"error":    err.Error(),
			})
			return
		}

		c.mu.Lock()
		c.enabled = true
		c.gateOrigin = gateOrigin
		c.mu.Unlock()

		if c.doc.Loading() {
			c.doc.OnContentLoaded(c.mountFrame)
		} else {
			c.mountFrame()
		}
		c.messages.AddMessageListener(c.HandleMessage)

		log.LogInfoWithFields("bridge", "Auth bridge initialized", map[string]any{
			"gate_origin": gateOrigin.String(),
		})
	})
	return c.Enabled()
}

// Enabled reports whether Init succeeded.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// GateOrigin is the only origin messages are accepted from.
func (c *Controller) GateOrigin() origin.Origin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateOrigin
}

func (c *Controller) mountFrame() {
	if c.doc.HasGateFrame() {
		return
	}
	if err := c.doc.AppendGateFrame(c.gateURL, FrameTitle); err != nil {
		log.LogErrorWithFields("bridge", "Failed to mount gate iframe", map[string]any{
			"error": err.Error(),
		})
	}
}

// HandleMessage applies one message event. Anything not from the gate
// origin, not shaped like a bridge message, or already applied is dropped.
func (c *Controller) HandleMessage(ev Event) {
	c.mu.Lock()
	if !c.enabled || ev.Origin != c.gateOrigin.String() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	payload, err := protocol.Decode(ev.Data)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedToken) {
			log.LogDebugWithFields("bridge", "Ignoring malformed auth message", nil)
		}
		return
	}

	if payload.SignOut {
		c.applySignOut()
		return
	}
	c.applySignIn(payload.RefreshToken)
}

func (c *Controller) applySignOut() {
	c.mu.Lock()
	if c.lastKind == appliedSignOut {
		c.mu.Unlock()
		return
	}
	c.lastKind, c.lastToken = appliedSignOut, ""
	c.mu.Unlock()

	c.enqueue(func(ctx context.Context) {
		if err := c.store.SignOut(ctx); err != nil {
			log.LogErrorWithFields("bridge", "Sign-out failed", map[string]any{
				"error": err.Error(),
			})
		}
	})
}

func (c *Controller) applySignIn(token string) {
	c.mu.Lock()
	if c.lastKind == appliedToken && c.lastToken == token {
		c.mu.Unlock()
		return
	}
	c.lastKind, c.lastToken = appliedToken, token
	c.mu.Unlock()

	c.enqueue(func(ctx context.Context) {
		err := c.store.SignInWithToken(ctx, token)
		if err == nil {
			return
		}
		log.LogErrorWithFields("bridge", "Sign-in with relayed token failed", map[string]any{
			"token": crypto.Fingerprint(token),
			"error": err.Error(),
		})
		c.rollback(token)
	})
}

// rollback forgets a token whose sign-in failed so the same token can be
// retried. A newer message that already replaced it is left alone.
func (c *Controller) rollback(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastKind == appliedToken && c.lastToken == token {
		c.lastKind, c.lastToken = appliedUnknown, ""
	}
}

// enqueue runs fn after every previously queued call, off the caller's
// goroutine, so a sign-out never overtakes an earlier sign-in.
func (c *Controller) enqueue(fn func(context.Context)) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	c.pending.Add(1)
	c.queue = append(c.queue, fn)
	if !c.draining {
		c.draining = true
		go c.drain()
	}
}

func (c *Controller) drain() {
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.queueMu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		c.call(fn)
		c.pending.Done()
	}
}

func (c *Controller) call(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.LogErrorWithFields("bridge", "Recovered from panic in session call", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	fn(ctx)
}

// Wait blocks until every queued sign-in and sign-out has finished.
func (c *Controller) Wait() {
	c.pending.Wait()
}

var (
	defaultOnce       sync.Once
	defaultController *Controller
)

// Setup builds and initializes the page-wide Controller. Only the first
// call has any effect; later calls return the same Controller.
func Setup(gateURL string, store session.Store, doc Document, messages MessageSource, opts ...Option) *Controller {
	defaultOnce.Do(func() {
		defaultController = New(gateURL, store, doc, messages, opts...)
		defaultController.Init()
	})
	return defaultController
}

// Default returns the Controller built by Setup, or nil.
func Default() *Controller {
	return defaultController
}
