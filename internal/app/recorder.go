package app

import (
	"context"
	"errors"
	"fmt"

	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// AttemptRepository persists completed quizzes.
type AttemptRepository interface {
	// SaveAttempt writes the attempt and its answers as one unit and returns
	// the generated attempt id. An unknown user yields domain.ErrUserNotFound.
	SaveAttempt(ctx context.Context, attempt domain.QuizAttempt) (int64, error)
	// ListAttempts returns a user's attempts for a level, newest first.
	ListAttempts(ctx context.Context, userID int64, level domain.Level) ([]domain.QuizAttempt, error)
}

// AttemptRecorder writes each completed session exactly once.
type AttemptRecorder struct {
	repo AttemptRepository
	log  *zap.Logger
}

func NewAttemptRecorder(repo AttemptRepository, log *zap.Logger) *AttemptRecorder {
	return &AttemptRecorder{repo: repo, log: log}
}

// Record persists a completed session for the identity found in ctx. The
// session's saved flag gates the write: a second call returns
// domain.ErrAlreadyRecorded. A failed write releases the flag and is not
// retried.
func (r *AttemptRecorder) Record(ctx context.Context, session *QuizSession) (domain.QuizAttempt, error) {
	result, err := session.Result()
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	identity, err := domain.IdentityFromContext(ctx)
	if err != nil {
		r.log.Error("record quiz attempt: no identity",
			zap.String("session_id", session.ID()), zap.Error(err))
		return domain.QuizAttempt{}, err
	}
	if identity.UserID != session.UserID() {
		return domain.QuizAttempt{}, domain.ErrSessionOwnership
	}
	if len(result.Answers) != result.TotalQuestions {
		return domain.QuizAttempt{}, fmt.Errorf("%w: %d answers for %d questions",
			domain.ErrQuizNotCompleted, len(result.Answers), result.TotalQuestions)
	}

	if !session.MarkSaved() {
		return domain.QuizAttempt{}, domain.ErrAlreadyRecorded
	}

	attempt := domain.QuizAttempt{
		UserID:         identity.UserID,
		Level:          result.Level,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		Percentage:     result.Percentage,
		Passed:         result.Passed,
		CompletedAt:    result.CompletedAt,
		Answers:        result.Answers,
	}

	id, err := r.repo.SaveAttempt(ctx, attempt)
	if err != nil {
		session.releaseSaved()
		fields := []zap.Field{
			zap.Int64("user_id", identity.UserID),
			zap.Int("level", int(result.Level)),
			zap.String("session_id", session.ID()),
			zap.Error(err),
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			r.log.Error("record quiz attempt: user not found", fields...)
		} else {
			r.log.Error("record quiz attempt", fields...)
		}
		return attempt, fmt.Errorf("record quiz attempt: %w", err)
	}
	attempt.ID = id

	r.log.Info("quiz attempt recorded",
		zap.Int64("user_id", identity.UserID),
		zap.Int("level", int(result.Level)),
		zap.Int64("attempt_id", id),
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed))
	return attempt, nil
}

// Attempts lists persisted attempts for a user and level.
func (r *AttemptRecorder) Attempts(ctx context.Context, userID int64, level domain.Level) ([]domain.QuizAttempt, error) {
	attempts, err := r.repo.ListAttempts(ctx, userID, level)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}
