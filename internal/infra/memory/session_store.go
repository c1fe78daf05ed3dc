package memory

import (
	"sync"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
)

type sessionKey struct {
	userID int64
	level  domain.Level
}

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions idle for longer than ttl are dropped on the next lookup.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.RWMutex
	sessions  map[sessionKey]*app.QuizSession
	lastSweep time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[sessionKey]*app.QuizSession),
	}
}

func (s *SessionStore) GetOrCreate(userID int64, level domain.Level, create func() *app.QuizSession) *app.QuizSession {
	key := sessionKey{userID: userID, level: level}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if session, ok := s.sessions[key]; ok && !s.expired(session) {
		return session
	}
	session := create()
	s.sessions[key] = session
	return session
}

func (s *SessionStore) Get(userID int64, level domain.Level) (*app.QuizSession, bool) {
	key := sessionKey{userID: userID, level: level}
	s.mu.RLock()
	session, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.expired(session) {
		s.mu.Lock()
		if current, ok := s.sessions[key]; ok && current == session {
			delete(s.sessions, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return session, true
}

// Save is a no-op: sessions are shared by pointer.
func (s *SessionStore) Save(*app.QuizSession) {}

func (s *SessionStore) Delete(userID int64, level domain.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{userID: userID, level: level})
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweepLocked drops every idle session, at most once per ttl.
func (s *SessionStore) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.clock()
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for key, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, key)
		}
	}
}

func (s *SessionStore) expired(session *app.QuizSession) bool {
	return s.ttl > 0 && s.clock().Sub(session.LastActivity()) > s.ttl
}
