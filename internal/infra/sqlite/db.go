package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the database file at path and applies the
// schema. Foreign keys are enforced on every connection.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps SQLITE_BUSY out of request paths
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(ctx context.Context, db *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS progress (
            user_id INTEGER PRIMARY KEY,
            nivel0_completed INTEGER NOT NULL DEFAULT 0,
            nivel1_completed INTEGER NOT NULL DEFAULT 0,
            nivel2_completed INTEGER NOT NULL DEFAULT 0,
            nivel3_completed INTEGER NOT NULL DEFAULT 0,
            nivel4_completed INTEGER NOT NULL DEFAULT 0,
            total_time_spent INTEGER NOT NULL DEFAULT 0 CHECK (total_time_spent >= 0),
            data_analyses_created INTEGER NOT NULL DEFAULT 0 CHECK (data_analyses_created >= 0),
            last_updated TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS quiz_attempts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES progress (user_id) ON DELETE CASCADE,
            level INTEGER NOT NULL CHECK (level BETWEEN 0 AND 4),
            score INTEGER NOT NULL,
            total_questions INTEGER NOT NULL,
            percentage REAL NOT NULL,
            passed INTEGER NOT NULL,
            completed_at TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS quiz_attempts_user_level_idx ON quiz_attempts (user_id, level)`,

		`CREATE TABLE IF NOT EXISTS quiz_answers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            quiz_attempt_id INTEGER NOT NULL REFERENCES quiz_attempts (id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            question_text TEXT NOT NULL,
            selected_answer TEXT NOT NULL,
            correct_answer TEXT NOT NULL,
            is_correct INTEGER NOT NULL,
            explanation TEXT NOT NULL DEFAULT '',
            UNIQUE (quiz_attempt_id, position)
        )`,

		`CREATE TABLE IF NOT EXISTS user_achievements (
            user_id INTEGER NOT NULL REFERENCES progress (user_id) ON DELETE CASCADE,
            achievement_id TEXT NOT NULL,
            unlocked_at TEXT NOT NULL,
            PRIMARY KEY (user_id, achievement_id)
        )`,
	}

	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
