package app

import (
	"context"
	"errors"
	"fmt"

	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
// Sessions are keyed by user and level, so a session is only reachable by its owner.
type SessionRepository interface {
	GetOrCreate(userID int64, level domain.Level, create func() *QuizSession) *QuizSession
	Get(userID int64, level domain.Level) (*QuizSession, bool)
	// Save is called after every transition so stores can refresh liveness.
	Save(session *QuizSession)
	Delete(userID int64, level domain.Level)
}

// QuestionBank supplies the read-only question pool of a level.
type QuestionBank interface {
	Pool(ctx context.Context, level domain.Level) ([]domain.Question, error)
}

// QuizService contains the learning progress and quiz use cases. The acting
// user is always taken from the request context.
type QuizService struct {
	bank         QuestionBank
	sessions     SessionRepository
	progress     *ProgressStore
	recorder     *AttemptRecorder
	achievements *AchievementService
	rnd          RandSource
	log          *zap.Logger
}

func NewQuizService(
	bank QuestionBank,
	sessions SessionRepository,
	progress *ProgressStore,
	recorder *AttemptRecorder,
	achievements *AchievementService,
	rnd RandSource,
	log *zap.Logger,
) *QuizService {
	return &QuizService{
		bank:         bank,
		sessions:     sessions,
		progress:     progress,
		recorder:     recorder,
		achievements: achievements,
		rnd:          rnd,
		log:          log,
	}
}

// SubmitOutcome is everything the caller needs after one answer.
type SubmitOutcome struct {
	Feedback        domain.Feedback      `json:"feedback"`
	Session         SessionView          `json:"session"`
	Result          *domain.QuizResult   `json:"result,omitempty"`
	Attempt         *domain.QuizAttempt  `json:"attempt,omitempty"`
	LevelCompleted  bool                 `json:"levelCompleted"`
	NewAchievements []domain.Achievement `json:"newAchievements,omitempty"`
	// RecordError is set when persisting the finished quiz failed. The result
	// is still valid and must be shown.
	RecordError string `json:"recordError,omitempty"`
}

// Progress returns the acting user's progress record.
func (s *QuizService) Progress(ctx context.Context) (domain.ProgressRecord, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return s.progress.Get(ctx, id.UserID), nil
}

// UpdateProgress applies a field-name keyed partial update.
func (s *QuizService) UpdateProgress(ctx context.Context, fields map[string]any) error {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.progress.UpdateFields(ctx, id.UserID, fields)
}

// CompleteLevel marks a level complete outside the quiz flow and returns any
// achievements it unlocks.
func (s *QuizService) CompleteLevel(ctx context.Context, level int) ([]domain.Achievement, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.progress.CompleteLevel(ctx, id.UserID, level); err != nil {
		return nil, err
	}
	return s.unlock(ctx, id.UserID, domain.TriggerLevelCompleted, EvaluationContext{
		Progress: s.progress.Get(ctx, id.UserID),
		Level:    domain.Level(level),
	}), nil
}

// ResetLevel clears a level's completion flag.
func (s *QuizService) ResetLevel(ctx context.Context, level int) error {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.progress.ResetLevel(ctx, id.UserID, level)
}

// ResetAll clears every level flag.
func (s *QuizService) ResetAll(ctx context.Context) error {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.progress.ResetAll(ctx, id.UserID)
}

// AddTimeSpent adds minutes to the user's time counter.
func (s *QuizService) AddTimeSpent(ctx context.Context, minutes int) error {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.progress.AddTimeSpent(ctx, id.UserID, minutes)
}

// RecordAnalysis counts one created analysis and returns new achievements.
func (s *QuizService) RecordAnalysis(ctx context.Context) (domain.ProgressRecord, []domain.Achievement, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return domain.ProgressRecord{}, nil, err
	}
	rec, err := s.progress.IncrementAnalyses(ctx, id.UserID)
	if err != nil {
		return domain.ProgressRecord{}, nil, err
	}
	unlocked := s.unlock(ctx, id.UserID, domain.TriggerAnalysisCreated, EvaluationContext{Progress: rec})
	return rec, unlocked, nil
}

// Achievements lists the user's unlocked achievements.
func (s *QuizService) Achievements(ctx context.Context) ([]domain.Achievement, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.achievements.List(ctx, id.UserID)
}

// Attempts lists the user's persisted attempts for a level.
func (s *QuizService) Attempts(ctx context.Context, level int) ([]domain.QuizAttempt, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	l, err := domain.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return s.recorder.Attempts(ctx, id.UserID, l)
}

// StartQuiz draws a quiz for level. A pool that is too small fails before any
// session exists.
func (s *QuizService) StartQuiz(ctx context.Context, level int) (SessionView, error) {
	id, l, err := s.resolve(ctx, level)
	if err != nil {
		return SessionView{}, err
	}

	pool, err := s.bank.Pool(ctx, l)
	if err != nil {
		return SessionView{}, err
	}
	if len(pool) < domain.QuestionsPerQuiz {
		return SessionView{}, fmt.Errorf("%w: level %d has %d, need %d",
			domain.ErrInsufficientQuestions, l, len(pool), domain.QuestionsPerQuiz)
	}

	// attempts reference the progress row, so make sure it exists
	s.progress.Get(ctx, id.UserID)

	session := s.sessions.GetOrCreate(id.UserID, l, func() *QuizSession {
		return NewQuizSession(id.UserID, l, s.rnd)
	})
	if err := session.Start(pool); err != nil {
		return SessionView{}, err
	}
	s.sessions.Save(session)

	s.log.Debug("quiz started",
		zap.Int64("user_id", id.UserID), zap.Int("level", int(l)), zap.String("session_id", session.ID()))
	return session.View(), nil
}

// Session returns the current snapshot of the user's session for level.
func (s *QuizService) Session(ctx context.Context, level int) (SessionView, error) {
	session, err := s.session(ctx, level)
	if err != nil {
		return SessionView{}, err
	}
	return session.View(), nil
}

// SubmitAnswer grades one answer. The submission that completes the quiz also
// records the attempt, completes the level when passed, and evaluates
// achievements. Persistence failures never hide the result.
func (s *QuizService) SubmitAnswer(ctx context.Context, level int, option string) (SubmitOutcome, error) {
	session, err := s.session(ctx, level)
	if err != nil {
		return SubmitOutcome{}, err
	}

	fb, err := session.Submit(option)
	if err != nil {
		return SubmitOutcome{}, err
	}
	s.sessions.Save(session)

	out := SubmitOutcome{Feedback: fb}
	if fb.JustCompleted {
		// a failed record is reported in RecordError; the result still stands
		_ = s.finish(ctx, session, &out)
	}
	out.Session = session.View()
	return out, nil
}

// RecordQuiz retries persisting a completed session whose earlier record
// failed. Level completion and achievements are evaluated again; both are
// idempotent.
func (s *QuizService) RecordQuiz(ctx context.Context, level int) (SubmitOutcome, error) {
	session, err := s.session(ctx, level)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if _, err := session.Result(); err != nil {
		return SubmitOutcome{}, err
	}

	var out SubmitOutcome
	if err := s.finish(ctx, session, &out); err != nil {
		return SubmitOutcome{}, err
	}
	out.Session = session.View()
	return out, nil
}

// finish records the session and applies its consequences. Only the record
// error is returned; progress and achievement failures are logged.
func (s *QuizService) finish(ctx context.Context, session *QuizSession, out *SubmitOutcome) error {
	result, err := session.Result()
	if err != nil {
		return err
	}
	out.Result = &result

	attempt, recordErr := s.recorder.Record(ctx, session)
	if recordErr != nil {
		if errors.Is(recordErr, domain.ErrAlreadyRecorded) {
			return recordErr
		}
		out.RecordError = recordErr.Error()
	} else {
		out.Attempt = &attempt
	}

	userID := session.UserID()
	if result.Passed {
		if err := s.progress.CompleteLevel(ctx, userID, int(result.Level)); err != nil {
			s.log.Error("complete level after quiz",
				zap.Int64("user_id", userID), zap.Int("level", int(result.Level)), zap.Error(err))
		} else {
			out.LevelCompleted = true
			out.NewAchievements = append(out.NewAchievements,
				s.unlock(ctx, userID, domain.TriggerLevelCompleted, EvaluationContext{
					Progress: s.progress.Get(ctx, userID),
					Level:    result.Level,
				})...)
		}
	}

	out.NewAchievements = append(out.NewAchievements,
		s.unlock(ctx, userID, domain.TriggerQuizPerfect, EvaluationContext{
			Progress:       s.progress.Get(ctx, userID),
			Level:          result.Level,
			Score:          result.Score,
			TotalQuestions: result.TotalQuestions,
		})...)
	return recordErr
}

// SkipQuiz defers the quiz for level. Without an existing session nothing is
// created.
func (s *QuizService) SkipQuiz(ctx context.Context, level int) (SessionView, error) {
	id, l, err := s.resolve(ctx, level)
	if err != nil {
		return SessionView{}, err
	}
	session, ok := s.sessions.Get(id.UserID, l)
	if !ok {
		return SessionView{Level: l, State: StateSkipped, Total: domain.QuestionsPerQuiz}, nil
	}
	if err := session.Skip(); err != nil {
		return SessionView{}, err
	}
	s.sessions.Save(session)
	return session.View(), nil
}

// ResetQuiz returns the user's session for level to its initial state.
func (s *QuizService) ResetQuiz(ctx context.Context, level int) (SessionView, error) {
	id, l, err := s.resolve(ctx, level)
	if err != nil {
		return SessionView{}, err
	}
	session, ok := s.sessions.Get(id.UserID, l)
	if !ok {
		return SessionView{Level: l, State: StateNotStarted, Total: domain.QuestionsPerQuiz}, nil
	}
	session.Reset()
	s.sessions.Save(session)
	return session.View(), nil
}

// AbandonQuiz drops the user's session for level.
func (s *QuizService) AbandonQuiz(ctx context.Context, level int) error {
	id, l, err := s.resolve(ctx, level)
	if err != nil {
		return err
	}
	s.sessions.Delete(id.UserID, l)
	return nil
}

func (s *QuizService) session(ctx context.Context, level int) (*QuizSession, error) {
	id, l, err := s.resolve(ctx, level)
	if err != nil {
		return nil, err
	}
	session, ok := s.sessions.Get(id.UserID, l)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.UserID() != id.UserID {
		return nil, domain.ErrSessionOwnership
	}
	return session, nil
}

func (s *QuizService) resolve(ctx context.Context, level int) (domain.Identity, domain.Level, error) {
	id, err := domain.IdentityFromContext(ctx)
	if err != nil {
		return domain.Identity{}, 0, err
	}
	l, err := domain.ParseLevel(level)
	if err != nil {
		return domain.Identity{}, 0, err
	}
	return id, l, nil
}

// unlock evaluates a trigger; achievement storage failures are logged only.
func (s *QuizService) unlock(ctx context.Context, userID int64, trigger domain.Trigger, ec EvaluationContext) []domain.Achievement {
	unlocked, err := s.achievements.Unlock(ctx, userID, trigger, ec)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Error("evaluate achievements",
				zap.Int64("user_id", userID), zap.String("trigger", string(trigger)), zap.Error(err))
		}
		return nil
	}
	return unlocked
}
