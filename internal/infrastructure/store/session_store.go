package store

import (
	"sync"
	"time"

	"tenant-gate/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SessionStore keeps one session record per scope, in memory. Implements
// domain.SessionStore. Scopes are independent: no operation on one scope
// blocks on another, so tenants proceed in parallel.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // keyed by scope + "/" + session id
	clock    clockwork.Clock
	maxAge   time.Duration
	done     chan struct{}
}

// NewSessionStore creates a session store and starts its sweep loop. maxAge
// bounds the absolute lifetime of a session regardless of activity.
func NewSessionStore(clock clockwork.Clock, maxAge time.Duration) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*domain.Session),
		clock:    clock,
		maxAge:   maxAge,
		done:     make(chan struct{}),
	}
	// Create the ticker before spawning the loop so the ticker is registered
	// with the clock by the time the constructor returns; a fake clock
	// advanced immediately after construction still delivers the tick.
	ticker := clock.NewTicker(1 * time.Minute)
	go s.sweepLoop(ticker)
	return s
}

func key(scope, sessionID string) string {
	return scope + "/" + sessionID
}

// LoadOrCreate returns a fresh unauthenticated session for the scope.
func (s *SessionStore) LoadOrCreate(scope string) *domain.Session {
	now := s.clock.Now()
	session := &domain.Session{
		ID:         uuid.NewString(),
		Scope:      scope,
		CreatedAt:  now,
		LastAccess: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key(scope, session.ID)] = session
	return copySession(session)
}

// Load retrieves a session by scope and id. The scope must match: a session
// id presented under the wrong scope is not found, which is what keeps a
// credential valid on one domain from being honored by another.
func (s *SessionStore) Load(scope, sessionID string) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, found := s.sessions[key(scope, sessionID)]
	if !found {
		return nil, false
	}
	return copySession(session), true
}

// Bind attaches a user to the session, marking it authenticated.
func (s *SessionStore) Bind(scope, sessionID, userID string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[key(scope, sessionID)]
	if !found {
		return nil, false
	}
	session.UserID = userID
	session.LastAccess = s.clock.Now()
	return copySession(session), true
}

// Touch bumps the last-access instant. Concurrent touches race benignly;
// last-writer-wins is acceptable because any write keeps the session fresh.
func (s *SessionStore) Touch(scope, sessionID string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[key(scope, sessionID)]
	if !found {
		return nil, false
	}
	session.LastAccess = s.clock.Now()
	return copySession(session), true
}

// ExpireIfIdle destroys the session when it has been idle past the timeout.
// The caller must then respond as unauthenticated rather than silently
// extending the session.
func (s *SessionStore) ExpireIfIdle(scope, sessionID string, idleTimeout time.Duration) domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(scope, sessionID)
	session, found := s.sessions[k]
	if !found {
		return domain.OutcomeExpired
	}
	if s.clock.Now().Sub(session.LastAccess) > idleTimeout {
		delete(s.sessions, k)
		return domain.OutcomeExpired
	}
	return domain.OutcomeActive
}

// Delete destroys a session. Deleting an absent session is a no-op.
func (s *SessionStore) Delete(scope, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key(scope, sessionID))
}

// Stop terminates the sweep loop.
func (s *SessionStore) Stop() {
	close(s.done)
}

func (s *SessionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for k, session := range s.sessions {
		if now.Sub(session.CreatedAt) > s.maxAge {
			delete(s.sessions, k)
		}
	}
}

func (s *SessionStore) sweepLoop(ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func copySession(session *domain.Session) *domain.Session {
	c := *session
	return &c
}
