package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"datalab-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

// QuestionLoader loads question JSONB from Postgres.
type QuestionLoader struct {
	db DBTX
	tx *Transactor
}

func NewQuestionLoader(db DBTX, tx *Transactor) *QuestionLoader {
	return &QuestionLoader{db: db, tx: tx}
}

func (l *QuestionLoader) LoadPool(ctx context.Context, level domain.Level) ([]domain.Question, error) {
	rows, err := l.db.Query(ctx, `SELECT data FROM question_pools WHERE level=$1 ORDER BY id`, int(level))
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	defer rows.Close()

	var pool []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		pool = append(pool, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// Import upserts questions by id in a single transaction.
func (l *QuestionLoader) Import(ctx context.Context, questions []domain.Question) error {
	return l.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal question %q: %w", q.ID, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO question_pools (id, level, data)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET level = EXCLUDED.level, data = EXCLUDED.data
			`, q.ID, int(q.Level), raw)
			if err != nil {
				return fmt.Errorf("import question %q: %w", q.ID, err)
			}
		}
		return nil
	})
}
