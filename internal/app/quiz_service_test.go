package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"datalab-quiz-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func answerAll(t *testing.T, f *fixture, ctx context.Context, level domain.Level, correct int) app.SubmitOutcome {
	t.Helper()
	p := pool(level, 6)
	var out app.SubmitOutcome
	for i := 0; i < domain.QuestionsPerQuiz; i++ {
		option := wrongOption(p[i])
		if i < correct {
			option = p[i].CorrectOption()
		}
		var err error
		out, err = f.service.SubmitAnswer(ctx, int(level), option)
		require.NoError(t, err)
		assert.Equal(t, i < correct, out.Feedback.Correct)
	}
	return out
}

func TestPassingQuizAdvancesLevel(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(42)

	for _, level := range []int{0, 1} {
		_, err := f.service.CompleteLevel(ctx, level)
		require.NoError(t, err)
	}

	view, err := f.service.StartQuiz(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, app.StateInProgress, view.State)
	require.NotNil(t, view.Question)
	assert.Equal(t, "level 2 question 1", view.Question.Text)

	out := answerAll(t, f, ctx, 2, 3)
	require.NotNil(t, out.Result)
	assert.Equal(t, 3, out.Result.Score)
	assert.True(t, out.Result.Passed)
	assert.InDelta(t, 60.0, out.Result.Percentage, 0.001)
	assert.Empty(t, out.RecordError)
	require.NotNil(t, out.Attempt)
	assert.True(t, out.LevelCompleted)
	assert.Empty(t, out.NewAchievements)
	assert.True(t, out.Session.Saved)
	assert.Equal(t, app.StateCompleted, out.Session.State)

	attempts, answers := f.store.AttemptCount()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 5, answers)

	rec, err := f.service.Progress(ctx)
	require.NoError(t, err)
	assert.True(t, rec.LevelCompleted[2])
	assert.Equal(t, domain.Level(3), rec.CurrentLevel())

	history, err := f.service.Attempts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].Score)
	assert.False(t, history[0].Answers[4].IsCorrect)
}

func TestFailingQuizKeepsLevelOpen(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(5)

	_, err := f.service.StartQuiz(ctx, 0)
	require.NoError(t, err)
	out := answerAll(t, f, ctx, 0, 2)

	require.NotNil(t, out.Result)
	assert.False(t, out.Result.Passed)
	assert.False(t, out.LevelCompleted)
	assert.NotNil(t, out.Attempt)

	rec, err := f.service.Progress(ctx)
	require.NoError(t, err)
	assert.False(t, rec.LevelCompleted[0])
	assert.Equal(t, domain.Level(0), rec.CurrentLevel())
}

func TestPerfectQuizUnlocksAchievements(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(9)

	_, err := f.service.StartQuiz(ctx, 0)
	require.NoError(t, err)
	out := answerAll(t, f, ctx, 0, 5)

	assert.Equal(t, []domain.Achievement{domain.AchievementFirstLevel, domain.AchievementQuizPerfect}, out.NewAchievements)

	held, err := f.service.Achievements(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Achievement{domain.AchievementFirstLevel, domain.AchievementQuizPerfect}, held)

	// a second perfect run unlocks nothing new
	_, err = f.service.ResetQuiz(ctx, 0)
	require.NoError(t, err)
	_, err = f.service.StartQuiz(ctx, 0)
	require.NoError(t, err)
	out = answerAll(t, f, ctx, 0, 5)
	assert.Empty(t, out.NewAchievements)

	attempts, _ := f.store.AttemptCount()
	assert.Equal(t, 2, attempts)
}

func TestStartQuizRejectsSmallPool(t *testing.T) {
	pools := fullPools()
	pools[3] = pool(3, 4)
	f := newFixture(t, pools, seqPerm{})

	_, err := f.service.StartQuiz(userCtx(1), 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientQuestions)
	assert.Zero(t, f.sessions.Len())
}

func TestStartQuizValidatesInput(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})

	_, err := f.service.StartQuiz(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.service.StartQuiz(userCtx(1), 7)
	assert.ErrorIs(t, err, domain.ErrInvalidLevel)

	_, err = f.service.StartQuiz(userCtx(1), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidLevel)
	assert.Zero(t, f.sessions.Len())
}

func TestCompletedQuizCannotRestartWithoutReset(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(3)

	_, err := f.service.StartQuiz(ctx, 1)
	require.NoError(t, err)
	answerAll(t, f, ctx, 1, 4)

	_, err = f.service.StartQuiz(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrQuizCompleted)

	_, err = f.service.SubmitAnswer(ctx, 1, "alpha")
	assert.Error(t, err)

	view, err := f.service.ResetQuiz(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, app.StateNotStarted, view.State)
	assert.False(t, view.Saved)

	view, err = f.service.StartQuiz(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, app.StateInProgress, view.State)
	assert.Zero(t, view.Score)
}

func TestSkipAndResetWithoutSession(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(4)

	view, err := f.service.SkipQuiz(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, app.StateSkipped, view.State)

	view, err = f.service.ResetQuiz(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, app.StateNotStarted, view.State)
	assert.Zero(t, f.sessions.Len())

	_, err = f.service.Session(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSkipOnlyBeforeStart(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(4)

	_, err := f.service.StartQuiz(ctx, 2)
	require.NoError(t, err)
	_, err = f.service.SkipQuiz(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.service.ResetQuiz(ctx, 2)
	require.NoError(t, err)
	view, err := f.service.SkipQuiz(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, app.StateSkipped, view.State)

	_, err = f.service.SubmitAnswer(ctx, 2, "alpha")
	assert.Error(t, err)

	attempts, _ := f.store.AttemptCount()
	assert.Zero(t, attempts)
}

func TestSubmitAnswerWithoutSession(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})

	_, err := f.service.SubmitAnswer(userCtx(1), 0, "alpha")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})

	_, err := f.service.StartQuiz(userCtx(1), 0)
	require.NoError(t, err)

	_, err = f.service.SubmitAnswer(userCtx(2), 0, "alpha")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	view, err := f.service.Session(userCtx(1), 0)
	require.NoError(t, err)
	assert.Zero(t, view.Index)
}

// foreignSessions hands out a session owned by someone else.
type foreignSessions struct {
	session *app.QuizSession
}

func (f foreignSessions) GetOrCreate(int64, domain.Level, func() *app.QuizSession) *app.QuizSession {
	return f.session
}

func (f foreignSessions) Get(int64, domain.Level) (*app.QuizSession, bool) { return f.session, true }
func (foreignSessions) Save(*app.QuizSession)                             {}
func (foreignSessions) Delete(int64, domain.Level)                        {}

func TestSessionOwnershipIsEnforced(t *testing.T) {
	log := zap.NewNop()
	store := memory.NewStore()
	other := app.NewQuizSession(99, 0, seqPerm{})
	require.NoError(t, other.Start(pool(0, 5)))

	service := app.NewQuizService(
		memory.NewQuestionBank(memory.NewStaticQuestionLoader(fullPools()), 0),
		foreignSessions{session: other},
		app.NewProgressStore(store, memory.NewProgressCache(0), log),
		app.NewAttemptRecorder(store, log),
		app.NewAchievementService(store, log),
		seqPerm{},
		log,
	)

	_, err := service.SubmitAnswer(userCtx(1), 0, "alpha")
	assert.ErrorIs(t, err, domain.ErrSessionOwnership)
	assert.Zero(t, other.View().Index)
}

func TestRecordFailureStillReturnsResult(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(6)
	p := pool(1, 6)

	_, err := f.service.StartQuiz(ctx, 1)
	require.NoError(t, err)
	for i := 0; i < domain.QuestionsPerQuiz-1; i++ {
		_, err := f.service.SubmitAnswer(ctx, 1, p[i].CorrectOption())
		require.NoError(t, err)
	}

	f.store.FailWith = errors.New("connection reset")
	out, err := f.service.SubmitAnswer(ctx, 1, p[4].CorrectOption())
	require.NoError(t, err)

	require.NotNil(t, out.Result)
	assert.Equal(t, 5, out.Result.Score)
	assert.NotEmpty(t, out.RecordError)
	assert.Nil(t, out.Attempt)
	assert.False(t, out.LevelCompleted)
	assert.False(t, out.Session.Saved)

	f.store.FailWith = nil
	attempts, _ := f.store.AttemptCount()
	assert.Zero(t, attempts)
}

func TestAnalysesUnlockDataAnalyst(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(11)

	var unlocked []domain.Achievement
	for i := 0; i < 5; i++ {
		rec, got, err := f.service.RecordAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, i+1, rec.DataAnalysesCreated)
		unlocked = append(unlocked, got...)
	}
	assert.Equal(t, []domain.Achievement{domain.AchievementDataAnalyst}, unlocked)

	_, got, err := f.service.RecordAnalysis(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompletingEveryLevelUnlocksAllLevels(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(12)

	var unlocked []domain.Achievement
	for level := 0; level < int(domain.LevelCount); level++ {
		got, err := f.service.CompleteLevel(ctx, level)
		require.NoError(t, err)
		unlocked = append(unlocked, got...)
		f.clock.Advance(time.Minute)
	}
	assert.Equal(t, []domain.Achievement{domain.AchievementFirstLevel, domain.AchievementAllLevels}, unlocked)

	rec, err := f.service.Progress(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, rec.TotalProgress(), 0.001)
}

func TestRecordQuizRetriesFailedRecord(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(6)
	p := pool(0, 6)

	_, err := f.service.StartQuiz(ctx, 0)
	require.NoError(t, err)
	for i := 0; i < domain.QuestionsPerQuiz-1; i++ {
		_, err := f.service.SubmitAnswer(ctx, 0, p[i].CorrectOption())
		require.NoError(t, err)
	}
	f.store.FailWith = errors.New("connection reset")
	out, err := f.service.SubmitAnswer(ctx, 0, p[4].CorrectOption())
	require.NoError(t, err)
	require.NotEmpty(t, out.RecordError)

	_, err = f.service.RecordQuiz(ctx, 0)
	require.Error(t, err)

	f.store.FailWith = nil
	out, err = f.service.RecordQuiz(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, out.Attempt)
	assert.True(t, out.LevelCompleted)
	assert.True(t, out.Session.Saved)
	assert.Equal(t, []domain.Achievement{domain.AchievementFirstLevel, domain.AchievementQuizPerfect}, out.NewAchievements)

	_, err = f.service.RecordQuiz(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyRecorded)

	attempts, answers := f.store.AttemptCount()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 5, answers)
}

func TestRecordQuizNeedsCompletedSession(t *testing.T) {
	f := newFixture(t, fullPools(), seqPerm{})
	ctx := userCtx(6)

	_, err := f.service.RecordQuiz(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.service.StartQuiz(ctx, 0)
	require.NoError(t, err)
	_, err = f.service.RecordQuiz(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrQuizNotCompleted)
}
