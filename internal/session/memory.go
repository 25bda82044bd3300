package session

import (
	"context"
	"sync"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process observable session. Subscribers are called
// on the goroutine that changed the state, one change at a time.
type MemoryStore struct {
	notifyMu sync.Mutex // serializes Set and Subscribe so callbacks see states in order
	mu       sync.Mutex
	state    State
	subs     map[uint64]func(State)
	nextID   uint64
}

// NewMemoryStore creates a store holding initial.
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{
		state: initial,
		subs:  make(map[uint64]func(State)),
	}
}

// State returns the current snapshot
func (m *MemoryStore) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set replaces the state and notifies subscribers if it changed.
func (m *MemoryStore) Set(next State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state.Equal(next) {
		m.mu.Unlock()
		return
	}
	m.state = next
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// Subscribe implements Store
func (m *MemoryStore) Subscribe(fn func(State)) func() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	current := m.state
	m.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// SignInWithToken accepts any non-empty token. Stores that talk to a real
// auth service embed MemoryStore and override this.
func (m *MemoryStore) SignInWithToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrEmptyToken
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Set(State{User: &User{RefreshToken: refreshToken}})
	return nil
}

// SignOut clears the user.
func (m *MemoryStore) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Set(State{})
	return nil
}

// subscriberCount is used by tests.
func (m *MemoryStore) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
