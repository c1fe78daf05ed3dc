package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProgressCache shares progress reads across instances. Records are stored as
// JSON under progress:user:{id}. Redis failures degrade to cache misses.
type ProgressCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewProgressCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *ProgressCache {
	return &ProgressCache{
		client: client,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ProgressCache) Get(ctx context.Context, userID int64) (domain.ProgressRecord, bool) {
	payload, err := c.client.Get(ctx, progressKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("progress cache get", zap.Int64("user_id", userID), zap.Error(err))
		}
		return domain.ProgressRecord{}, false
	}
	var rec domain.ProgressRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.ProgressRecord{}, false
	}
	return rec, true
}

func (c *ProgressCache) Set(ctx context.Context, rec domain.ProgressRecord) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, progressKey(rec.UserID), payload, c.ttlWithJitter()).Err(); err != nil {
		c.log.Warn("progress cache set", zap.Int64("user_id", rec.UserID), zap.Error(err))
	}
}

func (c *ProgressCache) Invalidate(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, progressKey(userID)).Err(); err != nil {
		c.log.Warn("progress cache invalidate", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func progressKey(userID int64) string {
	return "progress:user:" + strconv.FormatInt(userID, 10)
}

func (c *ProgressCache) ttlWithJitter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
