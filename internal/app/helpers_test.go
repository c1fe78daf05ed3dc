package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"datalab-quiz-service/internal/infra/memory"
	"go.uber.org/zap"
)

// seqPerm returns the identity permutation, so sessions draw pool[0..4] in order.
type seqPerm struct{}

func (seqPerm) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func pool(level domain.Level, n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:           fmt.Sprintf("l%d-q%d", level, i+1),
			Level:        level,
			Text:         fmt.Sprintf("level %d question %d", level, i+1),
			Options:      []string{"alpha", "beta", "gamma", "delta"},
			CorrectIndex: i % domain.OptionsPerQuestion,
			Explanation:  fmt.Sprintf("explanation %d", i+1),
		})
	}
	return out
}

// wrongOption returns an option of q that is not the correct one.
func wrongOption(q domain.Question) string {
	return q.Options[(q.CorrectIndex+1)%len(q.Options)]
}

type fixture struct {
	service  *app.QuizService
	store    *memory.Store
	progress *app.ProgressStore
	sessions *memory.SessionStore
	clock    *clock
}

func newFixture(t *testing.T, pools map[domain.Level][]domain.Question, rnd app.RandSource) *fixture {
	t.Helper()
	log := zap.NewNop()
	c := newClock()
	store := memory.NewStore()
	sessions := memory.NewSessionStore(time.Hour)
	progress := app.NewProgressStoreWithClock(store, memory.NewProgressCache(time.Minute), log, c.Now)
	service := app.NewQuizService(
		memory.NewQuestionBank(memory.NewStaticQuestionLoader(pools), 0),
		sessions,
		progress,
		app.NewAttemptRecorder(store, log),
		app.NewAchievementService(store, log),
		rnd,
		log,
	)
	return &fixture{service: service, store: store, progress: progress, sessions: sessions, clock: c}
}

func fullPools() map[domain.Level][]domain.Question {
	pools := make(map[domain.Level][]domain.Question)
	for l := domain.Level(0); l < domain.LevelCount; l++ {
		pools[l] = pool(l, 6)
	}
	return pools
}

func userCtx(userID int64) context.Context {
	return domain.WithIdentity(context.Background(), domain.Identity{UserID: userID, Username: fmt.Sprintf("user%d", userID)})
}

func seededRand(seed int64) app.RandSource {
	return rand.New(rand.NewSource(seed))
}
