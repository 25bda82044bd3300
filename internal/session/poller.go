package session

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/log"
)

// Fetcher reads the current session from the auth service. A nil user
// with a nil error means signed out.
type Fetcher interface {
	FetchSession(ctx context.Context) (*User, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (*User, error)

func (f FetcherFunc) FetchSession(ctx context.Context) (*User, error) {
	return f(ctx)
}

// Poller keeps a MemoryStore in step with a Fetcher. The store starts in
// the loading state and only changes when a poll result differs, so
// subscribers see changes rather than ticks.
type Poller struct {
	store    *MemoryStore
	fetcher  Fetcher
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller feeding store.
func NewPoller(store *MemoryStore, fetcher Fetcher, interval time.Duration) *Poller {
	return &Poller{
		store:    store,
		fetcher:  fetcher,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the poll loop in a goroutine
func (p *Poller) Start(ctx context.Context) {
	log.LogDebugWithFields("poller", "Starting session poller", map[string]any{
		"interval": p.interval.String(),
	})

	if p.store.State().User == nil {
		p.store.Set(State{IsLoading: true})
	}
	go p.run(ctx)
}

// Stop ends the poll loop and waits for it to exit
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	<-p.doneChan
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)

	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll fetches once and applies the result.
func (p *Poller) Poll(ctx context.Context) {
	user, err := p.fetcher.FetchSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.LogDebugWithFields("poller", "Session fetch failed", map[string]any{
			"error": err.Error(),
		})
		p.store.Set(State{Err: err, User: p.store.State().User})
		return
	}
	p.store.Set(State{User: user})
}
