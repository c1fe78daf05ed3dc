package domain

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// LevelCount is the number of sequential learning levels.
	LevelCount = 5
	// QuestionsPerQuiz is how many questions every quiz draws from its pool.
	QuestionsPerQuiz = 5
	// PassingScore is the fixed number of correct answers needed to pass.
	PassingScore = 3
	// OptionsPerQuestion is the number of choices every question offers.
	OptionsPerQuestion = 4
)

// Level identifies one of the ordered learning units.
type Level int

// LevelsCompleted is returned by CurrentLevel once every level is done.
const LevelsCompleted Level = LevelCount

// ParseLevel validates a raw level number.
func ParseLevel(n int) (Level, error) {
	l := Level(n)
	if !l.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLevel, n)
	}
	return l, nil
}

func (l Level) Valid() bool {
	return l >= 0 && l < LevelCount
}

func (l Level) String() string {
	if l == LevelsCompleted {
		return "completed"
	}
	return "nivel" + strconv.Itoa(int(l))
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Level        Level    `json:"level" yaml:"level"`
	Text         string   `json:"text" yaml:"text"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correct_index"`
	Explanation  string   `json:"explanation" yaml:"explanation"`
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Validate checks the shape every question bank entry must have.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w %q: empty text", ErrInvalidQuestion, q.ID)
	}
	if len(q.Options) != OptionsPerQuestion {
		return fmt.Errorf("%w %q: want %d options, got %d", ErrInvalidQuestion, q.ID, OptionsPerQuestion, len(q.Options))
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o == "" {
			return fmt.Errorf("%w %q: empty option", ErrInvalidQuestion, q.ID)
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w %q: duplicate option %q", ErrInvalidQuestion, q.ID, o)
		}
		seen[o] = struct{}{}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionsPerQuestion {
		return fmt.Errorf("%w %q: correct index %d out of range", ErrInvalidQuestion, q.ID, q.CorrectIndex)
	}
	return nil
}

// ValidatePool checks a level's pool as loaded: every question valid, filed
// under level, and no id repeated. Sampling relies on distinct entries being
// distinct questions.
func ValidatePool(level Level, pool []Question) error {
	seen := make(map[string]struct{}, len(pool))
	for _, q := range pool {
		if q.Level != level {
			return fmt.Errorf("%w %q: belongs to level %d, loaded for %d", ErrInvalidQuestion, q.ID, q.Level, level)
		}
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w %q: duplicate id in level %d", ErrInvalidQuestion, q.ID, level)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// Answer is one graded response inside a quiz.
type Answer struct {
	QuestionText   string `json:"questionText"`
	SelectedOption string `json:"selectedOption"`
	CorrectOption  string `json:"correctOption"`
	IsCorrect      bool   `json:"isCorrect"`
	Explanation    string `json:"explanation"`
}

// Feedback is what the caller shows right after a submission.
type Feedback struct {
	Index          int    `json:"index"`
	Correct        bool   `json:"correct"`
	SelectedOption string `json:"selectedOption"`
	CorrectOption  string `json:"correctOption"`
	Explanation    string `json:"explanation"`
	Score          int    `json:"score"`
	Completed      bool   `json:"completed"`
	// JustCompleted is true only for the submission that finished the quiz.
	JustCompleted bool `json:"justCompleted"`
}

// QuizResult summarizes a completed quiz.
type QuizResult struct {
	Level          Level     `json:"level"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	Answers        []Answer  `json:"answers"`
	CompletedAt    time.Time `json:"completedAt"`
}

// QuizAttempt is the persisted, immutable record of a completed quiz.
type QuizAttempt struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Level          Level     `json:"level"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	CompletedAt    time.Time `json:"completedAt"`
	Answers        []Answer  `json:"answers,omitempty"`
}

// Passed applies the fixed pass threshold, independent of quiz length.
func Passed(score int) bool {
	return score >= PassingScore
}

// Percentage returns score as a percentage of total.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}
