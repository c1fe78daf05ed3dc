package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
)

// Store keeps progress, attempts and achievements in process memory. It
// implements the app repositories for demos and tests; every method holds a
// single lock, so each call is atomic.
type Store struct {
	mu           sync.Mutex
	progress     map[int64]domain.ProgressRecord
	attempts     []domain.QuizAttempt
	nextAttempt  int64
	achievements map[int64]map[domain.Achievement]time.Time

	// FailWith, when set, is returned by every call. Tests use it to simulate
	// an unreachable store.
	FailWith error
}

func NewStore() *Store {
	return &Store{
		progress:     make(map[int64]domain.ProgressRecord),
		achievements: make(map[int64]map[domain.Achievement]time.Time),
	}
}

func (s *Store) GetProgress(_ context.Context, userID int64) (domain.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return domain.ProgressRecord{}, s.FailWith
	}
	rec, ok := s.progress[userID]
	if !ok {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	return rec, nil
}

func (s *Store) CreateProgress(_ context.Context, rec domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if _, ok := s.progress[rec.UserID]; !ok {
		s.progress[rec.UserID] = rec
	}
	return nil
}

func (s *Store) UpdateProgress(_ context.Context, userID int64, upd domain.ProgressUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	rec, ok := s.progress[userID]
	if !ok {
		return domain.ErrProgressNotFound
	}
	s.progress[userID] = rec.Apply(upd, at)
	return nil
}

// SaveAttempt requires a progress row for the user, mirroring the foreign key
// of the SQL stores.
func (s *Store) SaveAttempt(_ context.Context, attempt domain.QuizAttempt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	if _, ok := s.progress[attempt.UserID]; !ok {
		return 0, domain.ErrUserNotFound
	}
	s.nextAttempt++
	attempt.ID = s.nextAttempt
	attempt.Answers = append([]domain.Answer(nil), attempt.Answers...)
	s.attempts = append(s.attempts, attempt)
	return attempt.ID, nil
}

func (s *Store) ListAttempts(_ context.Context, userID int64, level domain.Level) ([]domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []domain.QuizAttempt
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if a.UserID == userID && a.Level == level {
			a.Answers = append([]domain.Answer(nil), a.Answers...)
			out = append(out, a)
		}
	}
	return out, nil
}

// AttemptCount returns the number of stored attempts and answers.
func (s *Store) AttemptCount() (attempts, answers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		answers += len(a.Answers)
	}
	return len(s.attempts), answers
}

func (s *Store) ListAchievements(_ context.Context, userID int64) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	held := s.achievements[userID]
	out := make([]domain.Achievement, 0, len(held))
	for id := range held {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) UnlockAchievements(_ context.Context, userID int64, ids []domain.Achievement, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	held, ok := s.achievements[userID]
	if !ok {
		held = make(map[domain.Achievement]time.Time)
		s.achievements[userID] = held
	}
	for _, id := range ids {
		if _, ok := held[id]; !ok {
			held[id] = at
		}
	}
	return nil
}
