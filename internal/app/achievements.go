package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// AchievementRepository stores unlocked achievements per user.
type AchievementRepository interface {
	ListAchievements(ctx context.Context, userID int64) ([]domain.Achievement, error)
	// UnlockAchievements inserts ids that are not yet held; existing ones are left alone.
	UnlockAchievements(ctx context.Context, userID int64, ids []domain.Achievement, at time.Time) error
}

// AchievementSet is the set of achievements a user already holds.
type AchievementSet map[domain.Achievement]struct{}

func NewAchievementSet(ids ...domain.Achievement) AchievementSet {
	set := make(AchievementSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s AchievementSet) Has(id domain.Achievement) bool {
	_, ok := s[id]
	return ok
}

// EvaluationContext is the state an achievement rule looks at.
type EvaluationContext struct {
	Progress       domain.ProgressRecord
	Level          domain.Level
	Score          int
	TotalQuestions int
}

type achievementRule struct {
	id      domain.Achievement
	trigger domain.Trigger
	met     func(EvaluationContext) bool
}

var achievementRules = []achievementRule{
	{
		id:      domain.AchievementQuizPerfect,
		trigger: domain.TriggerQuizPerfect,
		met: func(ec EvaluationContext) bool {
			return ec.TotalQuestions > 0 && ec.Score == ec.TotalQuestions
		},
	},
	{
		id:      domain.AchievementFirstLevel,
		trigger: domain.TriggerLevelCompleted,
		met: func(ec EvaluationContext) bool {
			return ec.Level == 0 && ec.Progress.LevelCompleted[0]
		},
	},
	{
		id:      domain.AchievementAllLevels,
		trigger: domain.TriggerLevelCompleted,
		met: func(ec EvaluationContext) bool {
			return ec.Progress.AllCompleted()
		},
	},
	{
		id:      domain.AchievementDataAnalyst,
		trigger: domain.TriggerAnalysisCreated,
		met: func(ec EvaluationContext) bool {
			return ec.Progress.DataAnalysesCreated >= 5
		},
	},
}

// Evaluate returns the achievements trigger unlocks that are not in held,
// sorted by id. It has no side effects.
func Evaluate(held AchievementSet, trigger domain.Trigger, ec EvaluationContext) []domain.Achievement {
	var unlocked []domain.Achievement
	for _, rule := range achievementRules {
		if rule.trigger != trigger || held.Has(rule.id) {
			continue
		}
		if rule.met(ec) {
			unlocked = append(unlocked, rule.id)
		}
	}
	sort.Slice(unlocked, func(i, j int) bool { return unlocked[i] < unlocked[j] })
	return unlocked
}

// AchievementService evaluates triggers against stored achievements and
// persists the new ones.
type AchievementService struct {
	repo AchievementRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewAchievementService(repo AchievementRepository, log *zap.Logger) *AchievementService {
	return &AchievementService{repo: repo, log: log, now: time.Now}
}

// Unlock persists and returns the achievements newly earned by trigger.
// Repeating a call with the same context returns nothing new.
func (s *AchievementService) Unlock(ctx context.Context, userID int64, trigger domain.Trigger, ec EvaluationContext) ([]domain.Achievement, error) {
	held, err := s.repo.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	unlocked := Evaluate(NewAchievementSet(held...), trigger, ec)
	if len(unlocked) == 0 {
		return nil, nil
	}
	if err := s.repo.UnlockAchievements(ctx, userID, unlocked, s.now()); err != nil {
		return nil, fmt.Errorf("unlock achievements: %w", err)
	}

	s.log.Info("achievements unlocked",
		zap.Int64("user_id", userID),
		zap.String("trigger", string(trigger)),
		zap.Any("achievements", unlocked))
	return unlocked, nil
}

// List returns the user's achievements.
func (s *AchievementService) List(ctx context.Context, userID int64) ([]domain.Achievement, error) {
	held, err := s.repo.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return held, nil
}
