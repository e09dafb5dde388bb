package auth

import (
	"sync"
	"time"
)

// Session represents a user session.
type Session struct {
	User      *User
	ExpiresAt time.Time
}

// SessionStore manages user sessions in memory.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a new session store. Close stops its cleanup
// goroutine.
func NewSessionStore() *SessionStore {
	store := &SessionStore{
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	go cleanupLoop(5*time.Minute, store.stopCh, store.removeExpired)
	return store
}

// Set stores a session.
func (s *SessionStore) Set(id string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session
}

// Get retrieves an unexpired session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, false
	}
	return session, true
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the cleanup goroutine.
func (s *SessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *SessionStore) removeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

// StateStore manages OIDC state tokens.
type StateStore struct {
	states   map[string]time.Time
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStateStore creates a new state store. Close stops its cleanup goroutine.
func NewStateStore() *StateStore {
	store := &StateStore{
		states: make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
	go cleanupLoop(time.Minute, store.stopCh, store.removeExpired)
	return store
}

// Set stores a state token.
func (s *StateStore) Set(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = time.Now().Add(StateExpiry)
}

// Validate checks if a state token is valid and removes it.
func (s *StateStore) Validate(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(expiry)
}

// Close stops the cleanup goroutine.
func (s *StateStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *StateStore) removeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, expiry := range s.states {
		if now.After(expiry) {
			delete(s.states, state)
		}
	}
}

func cleanupLoop(every time.Duration, stop <-chan struct{}, sweep func(time.Time)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			sweep(now)
		}
	}
}
