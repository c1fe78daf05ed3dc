package redis

import (
	"testing"
	"time"

	"datalab-quiz-service/internal/app"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fixedPerm struct{}

func (fixedPerm) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	session := store.GetOrCreate(42, 1, func() *app.QuizSession {
		return app.NewQuizSession(42, 1, fixedPerm{})
	})
	if !mr.Exists("quiz:session:42:1") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("quiz:session:42:1", "state"); got != string(app.StateNotStarted) {
		t.Fatalf("expected not_started snapshot, got %q", got)
	}
	if got := mr.HGet("quiz:session:42:1", "session_id"); got != session.ID() {
		t.Fatalf("expected session id %q, got %q", session.ID(), got)
	}

	if err := session.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	store.Save(session)
	if got := mr.HGet("quiz:session:42:1", "state"); got != string(app.StateSkipped) {
		t.Fatalf("expected skipped snapshot, got %q", got)
	}

	store.Delete(42, 1)
	if mr.Exists("quiz:session:42:1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get(42, 1); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreDropsSessionsWhenKeyExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	first := store.GetOrCreate(7, 0, func() *app.QuizSession { return app.NewQuizSession(7, 0, fixedPerm{}) })
	if _, ok := store.Get(7, 0); !ok {
		t.Fatalf("expected live session")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := store.Get(7, 0); ok {
		t.Fatalf("expected session to expire with its key")
	}

	second := store.GetOrCreate(7, 0, func() *app.QuizSession { return app.NewQuizSession(7, 0, fixedPerm{}) })
	if second == first {
		t.Fatalf("expected a fresh session after expiry")
	}
}

func TestSessionStoreSweepsAbandonedSessions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := start
	store := NewSessionStore(newClient(mr), time.Minute)
	store.clock = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		id := id
		store.GetOrCreate(id, 2, func() *app.QuizSession {
			return app.NewQuizSessionWithClock(id, 2, fixedPerm{}, func() time.Time { return start })
		})
	}

	now = start.Add(10 * time.Minute)
	store.GetOrCreate(8, 2, func() *app.QuizSession {
		return app.NewQuizSessionWithClock(8, 2, fixedPerm{}, func() time.Time { return now })
	})

	if store.Len() != 1 {
		t.Fatalf("expected idle sessions swept, got %d", store.Len())
	}
}
