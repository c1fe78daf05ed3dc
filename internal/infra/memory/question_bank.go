package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a level's question pool from a backing source
// (embedded YAML, Postgres, ...).
type QuestionLoader interface {
	LoadPool(ctx context.Context, level domain.Level) ([]domain.Question, error)
}

// QuestionBank caches question pools per level. With a zero TTL a pool is
// loaded once and kept for the life of the process.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[domain.Level]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[domain.Level]cachedPool),
	}
}

// Pool returns a copy of the level's questions.
func (b *QuestionBank) Pool(ctx context.Context, level domain.Level) ([]domain.Question, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidLevel, level)
	}

	if pool, ok := b.cached(level); ok {
		return clonePool(pool), nil
	}

	result, err, _ := b.sf.Do(level.String(), func() (interface{}, error) {
		if pool, ok := b.cached(level); ok {
			return pool, nil
		}

		pool, err := b.loader.LoadPool(ctx, level)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidatePool(level, pool); err != nil {
			return nil, err
		}

		entry := cachedPool{questions: pool}
		if b.ttl > 0 {
			entry.expiresAt = b.clock().Add(b.ttl)
		}
		b.mu.Lock()
		b.cache[level] = entry
		b.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePool(result.([]domain.Question)), nil
}

func (b *QuestionBank) cached(level domain.Level) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[level]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(b.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func clonePool(pool []domain.Question) []domain.Question {
	out := make([]domain.Question, len(pool))
	for i, q := range pool {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	pools map[domain.Level][]domain.Question
}

func NewStaticQuestionLoader(pools map[domain.Level][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{pools: pools}
}

func (l *StaticQuestionLoader) LoadPool(_ context.Context, level domain.Level) ([]domain.Question, error) {
	return l.pools[level], nil
}
