package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SessionTracker implements latest-request-wins per client session. Starting
// a request cancels the previous in-flight request of the same session.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	token  string
	cancel context.CancelFunc
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*sessionEntry)}
}

// Begin registers a new request for sessionID, cancels the previous one and
// returns a context derived from ctx together with the request token. The
// caller must call End when done.
func (t *SessionTracker) Begin(ctx context.Context, sessionID string) (context.Context, string) {
	reqCtx, cancel := context.WithCancel(ctx)
	token := uuid.NewString()

	t.mu.Lock()
	prev := t.sessions[sessionID]
	t.sessions[sessionID] = &sessionEntry{token: token, cancel: cancel}
	t.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	return reqCtx, token
}

// IsCurrent reports whether token belongs to the newest request of sessionID.
func (t *SessionTracker) IsCurrent(sessionID, token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	return ok && e.token == token
}

// End releases the request context. The session is forgotten only if token is
// still the newest request.
func (t *SessionTracker) End(sessionID, token string) {
	t.mu.Lock()
	e, ok := t.sessions[sessionID]
	current := ok && e.token == token
	if current {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	if current {
		e.cancel()
	}
}

// Len returns the number of sessions with a request in flight.
func (t *SessionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
