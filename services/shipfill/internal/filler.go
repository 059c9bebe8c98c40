package internal

import (
	"context"
	"sync"
)

// Filler owns the store and the only reference to the active session.
type Filler struct {
	cfg       SessionConfig
	transport Transport
	store     *Store

	mu      sync.Mutex
	session *Session
}

func NewFiller(cfg SessionConfig, transport Transport, store *Store) *Filler {
	return &Filler{cfg: cfg, transport: transport, store: store}
}

// Run starts a session and blocks until it ends. Only one session may be
// active at a time.
func (f *Filler) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.session != nil {
		f.mu.Unlock()
		return ErrSessionActive
	}
	s := NewSession(f.cfg, f.transport, f.store, f.detach)
	f.session = s
	f.mu.Unlock()

	return s.Run(ctx)
}

// Active returns the running session, if any.
func (f *Filler) Active() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Shutdown detaches and closes the active session. The session's own
// release then finds nothing to clear.
func (f *Filler) Shutdown() {
	f.mu.Lock()
	s := f.session
	f.session = nil
	f.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (f *Filler) detach(s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == s {
		f.session = nil
	}
}
