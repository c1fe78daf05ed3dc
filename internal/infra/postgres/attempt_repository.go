package postgres

import (
	"context"
	"fmt"

	"datalab-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

// AttemptRepository persists quiz attempts with their answers.
type AttemptRepository struct {
	db DBTX
	tx *Transactor
}

func NewAttemptRepository(db DBTX, tx *Transactor) *AttemptRepository {
	return &AttemptRepository{db: db, tx: tx}
}

// SaveAttempt writes the attempt row and all answer rows in one transaction.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt domain.QuizAttempt) (int64, error) {
	var id int64
	err := r.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO quiz_attempts (user_id, level, score, total_questions, percentage, passed, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`,
			attempt.UserID,
			int(attempt.Level),
			attempt.Score,
			attempt.TotalQuestions,
			attempt.Percentage,
			attempt.Passed,
			attempt.CompletedAt,
		).Scan(&id)
		if err != nil {
			return err
		}

		for i, a := range attempt.Answers {
			_, err := tx.Exec(ctx, `
				INSERT INTO quiz_answers (quiz_attempt_id, position, question_text, selected_answer, correct_answer, is_correct, explanation)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, id, i, a.QuestionText, a.SelectedOption, a.CorrectOption, a.IsCorrect, a.Explanation)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return 0, fmt.Errorf("%w: %d", domain.ErrUserNotFound, attempt.UserID)
	}
	if err != nil {
		return 0, fmt.Errorf("save attempt: %w", err)
	}
	return id, nil
}

// ListAttempts returns attempts newest first, answers in presentation order.
func (r *AttemptRepository) ListAttempts(ctx context.Context, userID int64, level domain.Level) ([]domain.QuizAttempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, level, score, total_questions, percentage, passed, completed_at
		FROM quiz_attempts
		WHERE user_id = $1 AND level = $2
		ORDER BY completed_at DESC, id DESC
	`, userID, int(level))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.QuizAttempt
	index := make(map[int64]int)
	ids := make([]int64, 0)
	for rows.Next() {
		var a domain.QuizAttempt
		var lvl int
		if err := rows.Scan(&a.ID, &a.UserID, &lvl, &a.Score, &a.TotalQuestions, &a.Percentage, &a.Passed, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Level = domain.Level(lvl)
		index[a.ID] = len(attempts)
		ids = append(ids, a.ID)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if len(attempts) == 0 {
		return attempts, nil
	}

	answerRows, err := r.db.Query(ctx, `
		SELECT quiz_attempt_id, question_text, selected_answer, correct_answer, is_correct, explanation
		FROM quiz_answers
		WHERE quiz_attempt_id = ANY($1)
		ORDER BY quiz_attempt_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var attemptID int64
		var ans domain.Answer
		if err := answerRows.Scan(&attemptID, &ans.QuestionText, &ans.SelectedOption, &ans.CorrectOption, &ans.IsCorrect, &ans.Explanation); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		i := index[attemptID]
		attempts[i].Answers = append(attempts[i].Answers, ans)
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return attempts, nil
}
