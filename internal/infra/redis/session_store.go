package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

type sessionKey struct {
	userID int64
	level  domain.Level
}

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves live in a local map; they hold a mutex and the
//     question draw, which are not shared across instances.
//   - Redis keeps a snapshot hash per session whose TTL is refreshed on every
//     Save. A session whose key has expired is treated as abandoned.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	clock     func() time.Time
	mu        sync.RWMutex
	sessions  map[sessionKey]*app.QuizSession
	lastSweep time.Time
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
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
	if session, ok := s.sessions[key]; ok && s.live(key) {
		return session
	}
	session := create()
	s.sessions[key] = session
	s.snapshot(session)
	return session
}

func (s *SessionStore) Get(userID int64, level domain.Level) (*app.QuizSession, bool) {
	key := sessionKey{userID: userID, level: level}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if !s.live(key) {
		delete(s.sessions, key)
		return nil, false
	}
	return session, true
}

// Save refreshes the snapshot and its TTL.
func (s *SessionStore) Save(session *app.QuizSession) {
	s.snapshot(session)
}

func (s *SessionStore) Delete(userID int64, level domain.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{userID: userID, level: level})
	_ = s.client.Del(context.Background(), redisKey(userID, level)).Err()
}

// Len reports how many sessions are held locally.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweepLocked drops local sessions idle for longer than ttl, at most once per
// ttl. Every Save refreshes the key TTL, so their Redis keys are gone too.
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
		if now.Sub(session.LastActivity()) > s.ttl {
			delete(s.sessions, key)
		}
	}
}

// live reports whether the liveness key still exists. Redis errors count as
// live so an outage does not discard in-flight quizzes.
func (s *SessionStore) live(key sessionKey) bool {
	n, err := s.client.Exists(context.Background(), redisKey(key.userID, key.level)).Result()
	if err != nil {
		return true
	}
	return n > 0
}

func (s *SessionStore) snapshot(session *app.QuizSession) {
	ctx := context.Background()
	view := session.View()
	key := redisKey(session.UserID(), session.Level())

	// best-effort snapshot
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"session_id", view.ID,
		"state", string(view.State),
		"index", view.Index,
		"score", view.Score,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func redisKey(userID int64, level domain.Level) string {
	return fmt.Sprintf("quiz:session:%d:%d", userID, int(level))
}
