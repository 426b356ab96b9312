package runtime

import (
	"sync"
	"time"

	"postbox/domain"
)

// Registry is the in-memory directory of open sessions.
// It is process-local: a restart logs everybody out.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session // map session id -> Session
	now      func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[string]domain.Session),
		now:      now,
	}
}

// Open registers a new session. Expired sessions are pruned on the way so
// the map cannot grow without bound.
func (r *Registry) Open(session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
		}
	}
	r.sessions[session.ID] = session
}

// Lookup returns the session if it is open and not expired.
func (r *Registry) Lookup(sessionID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok || session.Expired(r.now()) {
		return domain.Session{}, false
	}
	return session, true
}

// Close removes the session. It reports false when there was nothing open.
func (r *Registry) Close(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return !session.Expired(r.now())
}

// CloseAllFor closes every session held by a participant and returns how many were open.
func (r *Registry) CloseAllFor(participantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, s := range r.sessions {
		if s.ParticipantID == participantID {
			delete(r.sessions, id)
			closed++
		}
	}
	return closed
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	count := 0
	for _, s := range r.sessions {
		if !s.Expired(now) {
			count++
		}
	}
	return count
}
