package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProgressRepository is the durable store for progress rows keyed by user id.
type ProgressRepository interface {
	// GetProgress returns domain.ErrProgressNotFound when no row exists.
	GetProgress(ctx context.Context, userID int64) (domain.ProgressRecord, error)
	// CreateProgress inserts rec unless a row for the user already exists.
	CreateProgress(ctx context.Context, rec domain.ProgressRecord) error
	// UpdateProgress applies upd and sets last_updated to at in one atomic
	// row write. It returns domain.ErrProgressNotFound when no row exists.
	UpdateProgress(ctx context.Context, userID int64, upd domain.ProgressUpdate, at time.Time) error
}

// ProgressCache holds recently read progress records. Implementations must
// store and return copies.
type ProgressCache interface {
	Get(ctx context.Context, userID int64) (domain.ProgressRecord, bool)
	Set(ctx context.Context, rec domain.ProgressRecord)
	Invalidate(ctx context.Context, userID int64)
}

// ProgressStore serves per-user progress with a read cache that is dropped on
// every successful write.
//
// Writes for one user are last-writer-wins: two tabs of the same user doing
// read-modify-write (AddTimeSpent, IncrementAnalyses) can lose an increment.
// Writes for different users never touch the same row.
type ProgressStore struct {
	repo  ProgressRepository
	cache ProgressCache
	log   *zap.Logger
	now   func() time.Time
	sf    singleflight.Group

	// generations counts successful writes per user. A load only fills the
	// cache if no write committed while it was reading.
	genMu       sync.Mutex
	generations map[int64]uint64
}

func NewProgressStore(repo ProgressRepository, cache ProgressCache, log *zap.Logger) *ProgressStore {
	return NewProgressStoreWithClock(repo, cache, log, time.Now)
}

// NewProgressStoreWithClock is used by tests that need to observe last_updated.
func NewProgressStoreWithClock(repo ProgressRepository, cache ProgressCache, log *zap.Logger, now func() time.Time) *ProgressStore {
	return &ProgressStore{
		repo:        repo,
		cache:       cache,
		log:         log,
		now:         now,
		generations: make(map[int64]uint64),
	}
}

// Get returns the user's progress. A user without a row gets a freshly
// created default record. If the store fails, Get logs and returns an
// uncached default record instead of an error.
func (s *ProgressStore) Get(ctx context.Context, userID int64) domain.ProgressRecord {
	if rec, ok := s.cache.Get(ctx, userID); ok {
		return rec
	}

	v, err, _ := s.sf.Do(flightKey(userID), func() (interface{}, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		s.log.Warn("progress store unavailable, serving default record",
			zap.Int64("user_id", userID), zap.Error(err))
		return domain.NewProgressRecord(userID, s.now())
	}
	return v.(domain.ProgressRecord)
}

func (s *ProgressStore) load(ctx context.Context, userID int64) (domain.ProgressRecord, error) {
	gen := s.generation(userID)
	rec, err := s.repo.GetProgress(ctx, userID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		if err := s.repo.CreateProgress(ctx, domain.NewProgressRecord(userID, s.now())); err != nil {
			return domain.ProgressRecord{}, fmt.Errorf("create progress: %w", err)
		}
		// Re-read so a row created concurrently by another request wins.
		rec, err = s.repo.GetProgress(ctx, userID)
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	s.genMu.Lock()
	if s.generations[userID] == gen {
		s.cache.Set(ctx, rec)
	}
	s.genMu.Unlock()
	return rec, nil
}

func (s *ProgressStore) generation(userID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// written marks a committed write: loads already in flight neither fill the
// cache nor serve later callers.
func (s *ProgressStore) written(ctx context.Context, userID int64) {
	s.genMu.Lock()
	s.generations[userID]++
	s.sf.Forget(flightKey(userID))
	s.cache.Invalidate(ctx, userID)
	s.genMu.Unlock()
}

func flightKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Update applies a partial update in one write and invalidates the cache entry.
func (s *ProgressStore) Update(ctx context.Context, userID int64, upd domain.ProgressUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	if upd.TotalTimeSpent != nil {
		current, err := s.fresh(ctx, userID)
		if err != nil {
			s.log.Error("read progress before update", zap.Int64("user_id", userID), zap.Error(err))
			return err
		}
		if *upd.TotalTimeSpent < current.TotalTimeSpent {
			return fmt.Errorf("%w: %d < %d", domain.ErrTimeSpentDecreased, *upd.TotalTimeSpent, current.TotalTimeSpent)
		}
	}

	err := s.repo.UpdateProgress(ctx, userID, upd, s.now())
	if errors.Is(err, domain.ErrProgressNotFound) {
		if err = s.repo.CreateProgress(ctx, domain.NewProgressRecord(userID, s.now())); err == nil {
			err = s.repo.UpdateProgress(ctx, userID, upd, s.now())
		}
	}
	if err != nil {
		s.log.Error("update progress", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("update progress: %w", err)
	}

	s.written(ctx, userID)
	return nil
}

// UpdateFields is Update for callers holding field names, such as a decoded
// JSON body. An unknown field rejects the whole update.
func (s *ProgressStore) UpdateFields(ctx context.Context, userID int64, fields map[string]any) error {
	upd, err := domain.ParseProgressUpdate(fields)
	if err != nil {
		return err
	}
	return s.Update(ctx, userID, upd)
}

// CompleteLevel sets one level's completion flag.
func (s *ProgressStore) CompleteLevel(ctx context.Context, userID int64, level int) error {
	return s.setLevel(ctx, userID, level, true)
}

// ResetLevel clears one level's completion flag.
func (s *ProgressStore) ResetLevel(ctx context.Context, userID int64, level int) error {
	return s.setLevel(ctx, userID, level, false)
}

func (s *ProgressStore) setLevel(ctx context.Context, userID int64, level int, completed bool) error {
	l, err := domain.ParseLevel(level)
	if err != nil {
		return err
	}
	var upd domain.ProgressUpdate
	upd.SetLevel(l, completed)
	return s.Update(ctx, userID, upd)
}

// ResetAll clears every level flag in a single write.
func (s *ProgressStore) ResetAll(ctx context.Context, userID int64) error {
	var upd domain.ProgressUpdate
	upd.SetAllLevels(false)
	return s.Update(ctx, userID, upd)
}

// AddTimeSpent adds minutes to the time counter.
func (s *ProgressStore) AddTimeSpent(ctx context.Context, userID int64, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: negative minutes %d", domain.ErrInvalidUpdate, minutes)
	}
	current, err := s.fresh(ctx, userID)
	if err != nil {
		return err
	}
	var upd domain.ProgressUpdate
	upd.SetTotalTimeSpent(current.TotalTimeSpent + minutes)
	return s.Update(ctx, userID, upd)
}

// IncrementAnalyses bumps the analyses counter and returns the new record.
func (s *ProgressStore) IncrementAnalyses(ctx context.Context, userID int64) (domain.ProgressRecord, error) {
	current, err := s.fresh(ctx, userID)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	var upd domain.ProgressUpdate
	upd.SetDataAnalysesCreated(current.DataAnalysesCreated + 1)
	if err := s.Update(ctx, userID, upd); err != nil {
		return domain.ProgressRecord{}, err
	}
	return s.Get(ctx, userID), nil
}

// fresh reads the row directly, bypassing the cache. A missing row reads as
// the default record.
func (s *ProgressStore) fresh(ctx context.Context, userID int64) (domain.ProgressRecord, error) {
	rec, err := s.repo.GetProgress(ctx, userID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return domain.NewProgressRecord(userID, s.now()), nil
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}
