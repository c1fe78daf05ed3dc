package sqlite

import (
	"context"
	"fmt"
	"time"

	"datalab-quiz-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type AchievementRepository struct {
	db *sqlx.DB
}

func NewAchievementRepository(db *sqlx.DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

func (r *AchievementRepository) ListAchievements(ctx context.Context, userID int64) ([]domain.Achievement, error) {
	var raw []string
	err := r.db.SelectContext(ctx, &raw,
		`SELECT achievement_id FROM user_achievements WHERE user_id = ? ORDER BY achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	held := make([]domain.Achievement, 0, len(raw))
	for _, s := range raw {
		id, err := domain.ParseAchievement(s)
		if err != nil {
			return nil, err
		}
		held = append(held, id)
	}
	return held, nil
}

func (r *AchievementRepository) UnlockAchievements(ctx context.Context, userID int64, ids []domain.Achievement, at time.Time) (err error) {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id, achievement_id) DO NOTHING`,
			userID, string(id), formatTime(at))
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %d", domain.ErrUserNotFound, userID)
		}
		if err != nil {
			return fmt.Errorf("unlock achievements: %w", err)
		}
	}
	return tx.Commit()
}
