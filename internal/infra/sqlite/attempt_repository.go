package sqlite

import (
	"context"
	"fmt"

	"datalab-quiz-service/internal/domain"
	"github.com/jmoiron/sqlx"
)

type attemptRow struct {
	ID             int64   `db:"id"`
	UserID         int64   `db:"user_id"`
	Level          int     `db:"level"`
	Score          int     `db:"score"`
	TotalQuestions int     `db:"total_questions"`
	Percentage     float64 `db:"percentage"`
	Passed         bool    `db:"passed"`
	CompletedAt    string  `db:"completed_at"`
}

type answerRow struct {
	AttemptID      int64  `db:"quiz_attempt_id"`
	QuestionText   string `db:"question_text"`
	SelectedOption string `db:"selected_answer"`
	CorrectOption  string `db:"correct_answer"`
	IsCorrect      bool   `db:"is_correct"`
	Explanation    string `db:"explanation"`
}

type AttemptRepository struct {
	db *sqlx.DB
}

func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// SaveAttempt writes the attempt and its answers in one transaction.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt domain.QuizAttempt) (id int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quiz_attempts (user_id, level, score, total_questions, percentage, passed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.UserID,
		int(attempt.Level),
		attempt.Score,
		attempt.TotalQuestions,
		attempt.Percentage,
		attempt.Passed,
		formatTime(attempt.CompletedAt),
	)
	if err != nil {
		return 0, saveErr(attempt.UserID, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save attempt: %w", err)
	}

	for i, a := range attempt.Answers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO quiz_answers (quiz_attempt_id, position, question_text, selected_answer, correct_answer, is_correct, explanation)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, a.QuestionText, a.SelectedOption, a.CorrectOption, a.IsCorrect, a.Explanation)
		if err != nil {
			return 0, saveErr(attempt.UserID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attempt: %w", err)
	}
	return id, nil
}

func saveErr(userID int64, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %d", domain.ErrUserNotFound, userID)
	}
	return fmt.Errorf("save attempt: %w", err)
}

func (r *AttemptRepository) ListAttempts(ctx context.Context, userID int64, level domain.Level) ([]domain.QuizAttempt, error) {
	var rows []attemptRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, level, score, total_questions, percentage, passed, completed_at
		FROM quiz_attempts
		WHERE user_id = ? AND level = ?
		ORDER BY completed_at DESC, id DESC`, userID, int(level))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attempts := make([]domain.QuizAttempt, 0, len(rows))
	if len(rows) == 0 {
		return attempts, nil
	}
	index := make(map[int64]int, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		completed, err := parseTime(row.CompletedAt)
		if err != nil {
			return nil, err
		}
		index[row.ID] = len(attempts)
		ids = append(ids, row.ID)
		attempts = append(attempts, domain.QuizAttempt{
			ID:             row.ID,
			UserID:         row.UserID,
			Level:          domain.Level(row.Level),
			Score:          row.Score,
			TotalQuestions: row.TotalQuestions,
			Percentage:     row.Percentage,
			Passed:         row.Passed,
			CompletedAt:    completed,
		})
	}

	query, args, err := sqlx.In(`
		SELECT quiz_attempt_id, question_text, selected_answer, correct_answer, is_correct, explanation
		FROM quiz_answers
		WHERE quiz_attempt_id IN (?)
		ORDER BY quiz_attempt_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	var answers []answerRow
	if err := r.db.SelectContext(ctx, &answers, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for _, a := range answers {
		i := index[a.AttemptID]
		attempts[i].Answers = append(attempts[i].Answers, domain.Answer{
			QuestionText:   a.QuestionText,
			SelectedOption: a.SelectedOption,
			CorrectOption:  a.CorrectOption,
			IsCorrect:      a.IsCorrect,
			Explanation:    a.Explanation,
		})
	}
	return attempts, nil
}
