package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
	"datalab-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBank caches question pools in Redis and falls back to a loader on
// cache miss. Each pool is stored as a JSON array under questions:level:{n}.
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Pool(ctx context.Context, level domain.Level) ([]domain.Question, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidLevel, level)
	}
	key := poolKey(level)

	if pool, ok := b.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := b.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := b.loader.LoadPool(ctx, level)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidatePool(level, pool); err != nil {
			return nil, err
		}

		if payload, err := json.Marshal(pool); err == nil {
			_ = b.client.Set(ctx, key, payload, b.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight shares the slice between waiters
	shared := result.([]domain.Question)
	out := make([]domain.Question, len(shared))
	for i, q := range shared {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out, nil
}

func (b *QuestionBank) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	payload, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(payload, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

func poolKey(level domain.Level) string {
	return fmt.Sprintf("questions:level:%d", int(level))
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
