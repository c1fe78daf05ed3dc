package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"datalab-quiz-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type progressRow struct {
	UserID              int64  `db:"user_id"`
	Nivel0              bool   `db:"nivel0_completed"`
	Nivel1              bool   `db:"nivel1_completed"`
	Nivel2              bool   `db:"nivel2_completed"`
	Nivel3              bool   `db:"nivel3_completed"`
	Nivel4              bool   `db:"nivel4_completed"`
	TotalTimeSpent      int    `db:"total_time_spent"`
	DataAnalysesCreated int    `db:"data_analyses_created"`
	LastUpdated         string `db:"last_updated"`
}

func (r progressRow) record() (domain.ProgressRecord, error) {
	updated, err := parseTime(r.LastUpdated)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	return domain.ProgressRecord{
		UserID:              r.UserID,
		LevelCompleted:      [domain.LevelCount]bool{r.Nivel0, r.Nivel1, r.Nivel2, r.Nivel3, r.Nivel4},
		TotalTimeSpent:      r.TotalTimeSpent,
		DataAnalysesCreated: r.DataAnalysesCreated,
		LastUpdated:         updated,
	}, nil
}

type ProgressRepository struct {
	db *sqlx.DB
}

func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetProgress(ctx context.Context, userID int64) (domain.ProgressRecord, error) {
	var row progressRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM progress WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	return row.record()
}

func (r *ProgressRepository) CreateProgress(ctx context.Context, rec domain.ProgressRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress (
			user_id, nivel0_completed, nivel1_completed, nivel2_completed,
			nivel3_completed, nivel4_completed, total_time_spent,
			data_analyses_created, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		rec.UserID,
		rec.LevelCompleted[0],
		rec.LevelCompleted[1],
		rec.LevelCompleted[2],
		rec.LevelCompleted[3],
		rec.LevelCompleted[4],
		rec.TotalTimeSpent,
		rec.DataAnalysesCreated,
		formatTime(rec.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("create progress: %w", err)
	}
	return nil
}

func (r *ProgressRepository) UpdateProgress(ctx context.Context, userID int64, upd domain.ProgressUpdate, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE progress SET
			nivel0_completed = COALESCE(?, nivel0_completed),
			nivel1_completed = COALESCE(?, nivel1_completed),
			nivel2_completed = COALESCE(?, nivel2_completed),
			nivel3_completed = COALESCE(?, nivel3_completed),
			nivel4_completed = COALESCE(?, nivel4_completed),
			total_time_spent = COALESCE(?, total_time_spent),
			data_analyses_created = COALESCE(?, data_analyses_created),
			last_updated = ?
		WHERE user_id = ?`,
		upd.Levels[0],
		upd.Levels[1],
		upd.Levels[2],
		upd.Levels[3],
		upd.Levels[4],
		upd.TotalTimeSpent,
		upd.DataAnalysesCreated,
		formatTime(at),
		userID,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n == 0 {
		return domain.ErrProgressNotFound
	}
	return nil
}
