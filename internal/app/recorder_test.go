package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"datalab-quiz-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func completedSession(t *testing.T, userID int64, level domain.Level, correct int) *app.QuizSession {
	t.Helper()
	p := pool(level, 6)
	s := app.NewQuizSession(userID, level, seqPerm{})
	require.NoError(t, s.Start(p))
	for i := 0; i < domain.QuestionsPerQuiz; i++ {
		option := wrongOption(p[i])
		if i < correct {
			option = p[i].CorrectOption()
		}
		_, err := s.Submit(option)
		require.NoError(t, err)
	}
	return s
}

func registeredStore(t *testing.T, userIDs ...int64) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, id := range userIDs {
		require.NoError(t, store.CreateProgress(context.Background(), domain.NewProgressRecord(id, time.Now())))
	}
	return store
}

func TestRecordPersistsOnce(t *testing.T) {
	store := registeredStore(t, 3)
	recorder := app.NewAttemptRecorder(store, zap.NewNop())
	session := completedSession(t, 3, 1, 4)
	ctx := userCtx(3)

	attempt, err := recorder.Record(ctx, session)
	require.NoError(t, err)
	assert.NotZero(t, attempt.ID)
	assert.Equal(t, 4, attempt.Score)
	assert.True(t, attempt.Passed)
	assert.InDelta(t, 80.0, attempt.Percentage, 0.001)

	_, err = recorder.Record(ctx, session)
	assert.ErrorIs(t, err, domain.ErrAlreadyRecorded)

	attempts, answers := store.AttemptCount()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, domain.QuestionsPerQuiz, answers)
	assert.True(t, session.View().Saved)
}

func TestRecordConcurrentCallsPersistOnce(t *testing.T) {
	store := registeredStore(t, 3)
	recorder := app.NewAttemptRecorder(store, zap.NewNop())
	session := completedSession(t, 3, 0, 5)
	ctx := userCtx(3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := recorder.Record(ctx, session); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	attempts, _ := store.AttemptCount()
	assert.Equal(t, 1, attempts)
}

func TestRecordRequiresCompletedSession(t *testing.T) {
	recorder := app.NewAttemptRecorder(registeredStore(t, 3), zap.NewNop())
	s := app.NewQuizSession(3, 0, seqPerm{})
	require.NoError(t, s.Start(pool(0, 5)))

	_, err := recorder.Record(userCtx(3), s)
	assert.ErrorIs(t, err, domain.ErrQuizNotCompleted)
}

func TestRecordChecksIdentity(t *testing.T) {
	store := registeredStore(t, 3, 4)
	recorder := app.NewAttemptRecorder(store, zap.NewNop())
	session := completedSession(t, 3, 0, 5)

	_, err := recorder.Record(context.Background(), session)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = recorder.Record(userCtx(4), session)
	assert.ErrorIs(t, err, domain.ErrSessionOwnership)

	attempts, _ := store.AttemptCount()
	assert.Zero(t, attempts)
	assert.False(t, session.View().Saved)
}

func TestRecordFailureReleasesSavedFlag(t *testing.T) {
	store := memory.NewStore()
	recorder := app.NewAttemptRecorder(store, zap.NewNop())
	session := completedSession(t, 8, 2, 3)
	ctx := userCtx(8)

	// no progress row for user 8 yet
	_, err := recorder.Record(ctx, session)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.False(t, session.View().Saved)

	store.FailWith = errors.New("disk full")
	_, err = recorder.Record(ctx, session)
	require.Error(t, err)
	assert.False(t, session.View().Saved)

	store.FailWith = nil
	require.NoError(t, store.CreateProgress(context.Background(), domain.NewProgressRecord(8, time.Now())))
	_, err = recorder.Record(ctx, session)
	require.NoError(t, err)
	assert.True(t, session.View().Saved)
}

func TestResetAllowsRecordingANewAttempt(t *testing.T) {
	store := registeredStore(t, 2)
	recorder := app.NewAttemptRecorder(store, zap.NewNop())
	p := pool(1, 6)
	session := completedSession(t, 2, 1, 5)
	ctx := userCtx(2)

	_, err := recorder.Record(ctx, session)
	require.NoError(t, err)

	session.Reset()
	require.NoError(t, session.Start(p))
	for i := 0; i < domain.QuestionsPerQuiz; i++ {
		_, err := session.Submit(p[i].CorrectOption())
		require.NoError(t, err)
	}
	_, err = recorder.Record(ctx, session)
	require.NoError(t, err)

	history, err := recorder.Attempts(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
