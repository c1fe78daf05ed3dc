package postgres

import (
	"context"
	"fmt"
	"time"

	"datalab-quiz-service/internal/domain"
)

type AchievementRepository struct {
	db DBTX
}

func NewAchievementRepository(db DBTX) *AchievementRepository {
	return &AchievementRepository{db: db}
}

func (r *AchievementRepository) ListAchievements(ctx context.Context, userID int64) ([]domain.Achievement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT achievement_id
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	held := make([]domain.Achievement, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		id, err := domain.ParseAchievement(raw)
		if err != nil {
			return nil, err
		}
		held = append(held, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return held, nil
}

// UnlockAchievements inserts every id in one statement; ids already held keep
// their original unlock time.
func (r *AchievementRepository) UnlockAchievements(ctx context.Context, userID int64, ids []domain.Achievement, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		SELECT $1, unnest($2::text[]), $3
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID, raw, at)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %d", domain.ErrUserNotFound, userID)
	}
	if err != nil {
		return fmt.Errorf("unlock achievements: %w", err)
	}
	return nil
}
