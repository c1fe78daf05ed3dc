package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datalab-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

// ProgressRepository stores one progress row per user.
type ProgressRepository struct {
	db DBTX
}

func NewProgressRepository(db DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetProgress(ctx context.Context, userID int64) (domain.ProgressRecord, error) {
	query := `
		SELECT user_id, nivel0_completed, nivel1_completed, nivel2_completed,
		       nivel3_completed, nivel4_completed, total_time_spent,
		       data_analyses_created, last_updated
		FROM progress
		WHERE user_id = $1
	`

	var rec domain.ProgressRecord
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.LevelCompleted[0],
		&rec.LevelCompleted[1],
		&rec.LevelCompleted[2],
		&rec.LevelCompleted[3],
		&rec.LevelCompleted[4],
		&rec.TotalTimeSpent,
		&rec.DataAnalysesCreated,
		&rec.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (r *ProgressRepository) CreateProgress(ctx context.Context, rec domain.ProgressRecord) error {
	query := `
		INSERT INTO progress (
			user_id, nivel0_completed, nivel1_completed, nivel2_completed,
			nivel3_completed, nivel4_completed, total_time_spent,
			data_analyses_created, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		rec.UserID,
		rec.LevelCompleted[0],
		rec.LevelCompleted[1],
		rec.LevelCompleted[2],
		rec.LevelCompleted[3],
		rec.LevelCompleted[4],
		rec.TotalTimeSpent,
		rec.DataAnalysesCreated,
		rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("create progress: %w", err)
	}
	return nil
}

// UpdateProgress writes only the fields set in upd; NULL parameters keep the
// stored value.
func (r *ProgressRepository) UpdateProgress(ctx context.Context, userID int64, upd domain.ProgressUpdate, at time.Time) error {
	query := `
		UPDATE progress SET
			nivel0_completed = COALESCE($2, nivel0_completed),
			nivel1_completed = COALESCE($3, nivel1_completed),
			nivel2_completed = COALESCE($4, nivel2_completed),
			nivel3_completed = COALESCE($5, nivel3_completed),
			nivel4_completed = COALESCE($6, nivel4_completed),
			total_time_spent = COALESCE($7, total_time_spent),
			data_analyses_created = COALESCE($8, data_analyses_created),
			last_updated = $9
		WHERE user_id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		userID,
		upd.Levels[0],
		upd.Levels[1],
		upd.Levels[2],
		upd.Levels[3],
		upd.Levels[4],
		upd.TotalTimeSpent,
		upd.DataAnalysesCreated,
		at,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProgressNotFound
	}
	return nil
}
