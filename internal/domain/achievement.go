package domain

import (
	"context"
	"fmt"
)

// Achievement is a permanent badge from a closed set.
type Achievement string

const (
	AchievementFirstLevel  Achievement = "first_level"
	AchievementAllLevels   Achievement = "all_levels"
	AchievementQuizPerfect Achievement = "quiz_perfect"
	AchievementDataAnalyst Achievement = "data_analyst"
)

// Achievements lists every known achievement.
var Achievements = []Achievement{
	AchievementFirstLevel,
	AchievementAllLevels,
	AchievementQuizPerfect,
	AchievementDataAnalyst,
}

// ParseAchievement validates a stored achievement identifier.
func ParseAchievement(s string) (Achievement, error) {
	for _, a := range Achievements {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown achievement %q", s)
}

// Trigger is the event that prompts achievement evaluation.
type Trigger string

const (
	TriggerQuizPerfect     Trigger = "quiz_perfect"
	TriggerLevelCompleted  Trigger = "level_completed"
	TriggerAnalysisCreated Trigger = "analysis_created"
)

// Identity is the acting user as supplied by the identity collaborator.
type Identity struct {
	UserID   int64
	Username string
}

type identityKey struct{}

// WithIdentity attaches the acting user to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the acting user, or ErrUserNotFound.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID <= 0 {
		return Identity{}, ErrUserNotFound
	}
	return id, nil
}
