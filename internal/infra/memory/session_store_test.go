package memory

import (
	"testing"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
)

type fixedPerm struct{}

func (fixedPerm) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(time.Hour)

	created := 0
	create := func() *app.QuizSession {
		created++
		return app.NewQuizSession(7, 2, fixedPerm{})
	}

	session := store.GetOrCreate(7, 2, create)
	if session == nil {
		t.Fatalf("expected session")
	}
	if again := store.GetOrCreate(7, 2, create); again != session {
		t.Fatalf("expected the existing session to be reused")
	}
	if created != 1 {
		t.Fatalf("expected one session created, got %d", created)
	}
	if got, ok := store.Get(7, 2); !ok || got != session {
		t.Fatalf("expected session present")
	}

	store.Delete(7, 2)
	if _, ok := store.Get(7, 2); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreIsolatesUsersAndLevels(t *testing.T) {
	store := NewSessionStore(0)
	a := store.GetOrCreate(1, 0, func() *app.QuizSession { return app.NewQuizSession(1, 0, fixedPerm{}) })
	b := store.GetOrCreate(2, 0, func() *app.QuizSession { return app.NewQuizSession(2, 0, fixedPerm{}) })
	c := store.GetOrCreate(1, 1, func() *app.QuizSession { return app.NewQuizSession(1, 1, fixedPerm{}) })

	if a == b || a == c {
		t.Fatalf("expected distinct sessions per user and level")
	}
	if _, ok := store.Get(3, 0); ok {
		t.Fatalf("unexpected session for unknown user")
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 sessions, got %d", store.Len())
	}
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewSessionStore(30 * time.Minute)
	now := start
	store.clock = func() time.Time { return now }

	store.GetOrCreate(5, domain.Level(4), func() *app.QuizSession {
		return app.NewQuizSessionWithClock(5, 4, fixedPerm{}, func() time.Time { return start })
	})

	now = start.Add(10 * time.Minute)
	if _, ok := store.Get(5, 4); !ok {
		t.Fatalf("expected session to be live")
	}

	now = start.Add(time.Hour)
	if _, ok := store.Get(5, 4); ok {
		t.Fatalf("expected idle session to expire")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired session dropped, got %d", store.Len())
	}
}

func TestSessionStoreSweepsAbandonedSessions(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewSessionStore(30 * time.Minute)
	now := start
	store.clock = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		id := id
		store.GetOrCreate(id, 0, func() *app.QuizSession {
			return app.NewQuizSessionWithClock(id, 0, fixedPerm{}, func() time.Time { return start })
		})
	}

	now = start.Add(2 * time.Hour)
	store.GetOrCreate(9, 0, func() *app.QuizSession {
		return app.NewQuizSessionWithClock(9, 0, fixedPerm{}, func() time.Time { return now })
	})

	if store.Len() != 1 {
		t.Fatalf("expected idle sessions swept, got %d", store.Len())
	}
}
