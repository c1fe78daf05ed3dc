package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"datalab-quiz-service/internal/domain"
)

func TestStoreProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := store.GetProgress(ctx, 1); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
	if err := store.UpdateProgress(ctx, 1, domain.ProgressUpdate{}, now); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound on update, got %v", err)
	}

	if err := store.CreateProgress(ctx, domain.NewProgressRecord(1, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	var upd domain.ProgressUpdate
	upd.SetLevel(0, true)
	upd.SetTotalTimeSpent(15)
	later := now.Add(time.Minute)
	if err := store.UpdateProgress(ctx, 1, upd, later); err != nil {
		t.Fatalf("update: %v", err)
	}

	// a second create must not clobber the row
	if err := store.CreateProgress(ctx, domain.NewProgressRecord(1, now)); err != nil {
		t.Fatalf("create again: %v", err)
	}

	rec, err := store.GetProgress(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.LevelCompleted[0] || rec.TotalTimeSpent != 15 || !rec.LastUpdated.Equal(later) {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestStoreAttemptsRequireUser(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	attempt := domain.QuizAttempt{UserID: 9, Level: 1, Score: 4, TotalQuestions: 5}
	if _, err := store.SaveAttempt(ctx, attempt); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := store.CreateProgress(ctx, domain.NewProgressRecord(9, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := store.SaveAttempt(ctx, attempt)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	attempt.Score = 2
	second, err := store.SaveAttempt(ctx, attempt)
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if second <= first {
		t.Fatalf("expected increasing ids, got %d then %d", first, second)
	}

	list, err := store.ListAttempts(ctx, 9, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if other, _ := store.ListAttempts(ctx, 9, 2); len(other) != 0 {
		t.Fatalf("expected no attempts for other level, got %d", len(other))
	}
}

func TestStoreAchievementsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	at := time.Now()

	ids := []domain.Achievement{domain.AchievementQuizPerfect, domain.AchievementFirstLevel}
	if err := store.UnlockAchievements(ctx, 3, ids, at); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := store.UnlockAchievements(ctx, 3, ids[:1], at); err != nil {
		t.Fatalf("unlock again: %v", err)
	}

	held, err := store.ListAchievements(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(held) != 2 || held[0] != domain.AchievementFirstLevel {
		t.Fatalf("unexpected achievements: %v", held)
	}
}

func TestProgressCacheCopiesAndExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewProgressCache(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	rec := domain.NewProgressRecord(4, now)
	cache.Set(ctx, rec)
	rec.LevelCompleted[0] = true

	got, ok := cache.Get(ctx, 4)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.LevelCompleted[0] {
		t.Fatalf("cache shares state with caller")
	}

	cache.Invalidate(ctx, 4)
	if _, ok := cache.Get(ctx, 4); ok {
		t.Fatalf("expected miss after invalidate")
	}

	cache.Set(ctx, rec)
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, 4); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestProgressCacheSweepsAbandonedEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewProgressCache(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		cache.Set(ctx, domain.NewProgressRecord(id, now))
	}
	now = now.Add(5 * time.Minute)
	cache.Set(ctx, domain.NewProgressRecord(4, now))

	if cache.Len() != 1 {
		t.Fatalf("expected only the fresh entry left, got %d", cache.Len())
	}
}
