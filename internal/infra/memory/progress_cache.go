package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
)

// ProgressCache is a process-wide, short-lived cache of progress records.
// Records are stored and returned by value, so callers never share state
// with the cache.
type ProgressCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	rnd       *rand.Rand
	entries   map[int64]cachedProgress
	lastSweep time.Time
}

type cachedProgress struct {
	record    domain.ProgressRecord
	expiresAt time.Time
}

func NewProgressCache(ttl time.Duration) *ProgressCache {
	return &ProgressCache{
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[int64]cachedProgress),
	}
}

func (c *ProgressCache) Get(_ context.Context, userID int64) (domain.ProgressRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return domain.ProgressRecord{}, false
	}
	if !entry.expiresAt.After(c.clock()) {
		delete(c.entries, userID)
		return domain.ProgressRecord{}, false
	}
	return entry.record, true
}

func (c *ProgressCache) Set(_ context.Context, rec domain.ProgressRecord) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[rec.UserID] = cachedProgress{
		record:    rec,
		expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
	}
}

func (c *ProgressCache) Invalidate(_ context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len reports how many entries are held, expired or not.
func (c *ProgressCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked drops expired entries at most once per ttl.
func (c *ProgressCache) sweepLocked() {
	now := c.clock()
	if now.Sub(c.lastSweep) < c.ttl {
		return
	}
	c.lastSweep = now
	for id, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, id)
		}
	}
}

func (c *ProgressCache) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
