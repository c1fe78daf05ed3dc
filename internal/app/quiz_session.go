package app

import (
	"fmt"
	"sync"
	"time"

	"datalab-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// State is the lifecycle position of a quiz session.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateSkipped    State = "skipped"
)

// RandSource draws the permutations used for sampling and ordering questions.
// *math/rand.Rand satisfies it.
type RandSource interface {
	Perm(n int) []int
}

// QuizSession is one user's attempt at one level's quiz.
// Invariants: len(answers) == current, and state is StateCompleted exactly
// when current == QuestionsPerQuiz.
type QuizSession struct {
	id     string
	userID int64
	level  domain.Level
	rnd    RandSource
	now    func() time.Time

	mu          sync.Mutex
	state       State
	questions   []domain.Question
	order       []int
	current     int
	score       int
	answers     []domain.Answer
	feedback    *domain.Feedback
	saved       bool
	startedAt   time.Time
	completedAt time.Time
	touchedAt   time.Time
}

// NewQuizSession creates a session in StateNotStarted.
func NewQuizSession(userID int64, level domain.Level, rnd RandSource) *QuizSession {
	return NewQuizSessionWithClock(userID, level, rnd, time.Now)
}

// NewQuizSessionWithClock allows deterministic timestamps in tests.
func NewQuizSessionWithClock(userID int64, level domain.Level, rnd RandSource, now func() time.Time) *QuizSession {
	return &QuizSession{
		id:        uuid.NewString(),
		userID:    userID,
		level:     level,
		rnd:       rnd,
		now:       now,
		state:     StateNotStarted,
		touchedAt: now(),
	}
}

func (s *QuizSession) ID() string          { return s.id }
func (s *QuizSession) UserID() int64       { return s.userID }
func (s *QuizSession) Level() domain.Level { return s.level }

// State returns the current lifecycle state.
func (s *QuizSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity is the time of the last transition.
func (s *QuizSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}

// Start draws QuestionsPerQuiz distinct questions from pool and fixes their
// presentation order. Starting a session that is already in progress is a no-op.
func (s *QuizSession) Start(pool []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateInProgress:
		return nil
	case StateCompleted:
		return domain.ErrQuizCompleted
	}
	if len(pool) < domain.QuestionsPerQuiz {
		return fmt.Errorf("%w: level %d has %d, need %d",
			domain.ErrInsufficientQuestions, s.level, len(pool), domain.QuestionsPerQuiz)
	}

	picks := s.rnd.Perm(len(pool))[:domain.QuestionsPerQuiz]
	selected := make([]domain.Question, 0, domain.QuestionsPerQuiz)
	for _, idx := range picks {
		selected = append(selected, pool[idx])
	}

	s.questions = selected
	s.order = s.rnd.Perm(domain.QuestionsPerQuiz)
	s.current = 0
	s.score = 0
	s.answers = make([]domain.Answer, 0, domain.QuestionsPerQuiz)
	s.feedback = nil
	s.saved = false
	s.state = StateInProgress
	s.startedAt = s.now()
	s.completedAt = time.Time{}
	s.touchedAt = s.startedAt
	return nil
}

// Submit grades option against the current question and advances the quiz.
func (s *QuizSession) Submit(option string) (domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted, StateSkipped:
		return domain.Feedback{}, domain.ErrQuizNotStarted
	case StateCompleted:
		return domain.Feedback{}, domain.ErrQuizCompleted
	}
	if option == "" {
		return domain.Feedback{}, domain.ErrNoOptionSelected
	}

	question := s.currentQuestionLocked()
	if !question.HasOption(option) {
		return domain.Feedback{}, domain.ErrOptionNotFound
	}

	correctOption := question.CorrectOption()
	correct := option == correctOption
	s.answers = append(s.answers, domain.Answer{
		QuestionText:   question.Text,
		SelectedOption: option,
		CorrectOption:  correctOption,
		IsCorrect:      correct,
		Explanation:    question.Explanation,
	})
	if correct {
		s.score++
	}
	s.current++
	s.touchedAt = s.now()

	fb := domain.Feedback{
		Index:          s.current - 1,
		Correct:        correct,
		SelectedOption: option,
		CorrectOption:  correctOption,
		Explanation:    question.Explanation,
		Score:          s.score,
	}
	if s.current == domain.QuestionsPerQuiz {
		s.state = StateCompleted
		s.completedAt = s.touchedAt
		fb.Completed = true
		fb.JustCompleted = true
	}
	s.feedback = &fb
	return fb, nil
}

// Skip defers the quiz. Only allowed before it starts.
func (s *QuizSession) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return fmt.Errorf("%w: skip from %s", domain.ErrInvalidTransition, s.state)
	}
	s.state = StateSkipped
	s.feedback = nil
	s.touchedAt = s.now()
	return nil
}

// Reset returns the session to StateNotStarted and drops the drawn questions,
// so the next Start samples afresh.
func (s *QuizSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateNotStarted
	s.questions = nil
	s.order = nil
	s.current = 0
	s.score = 0
	s.answers = nil
	s.feedback = nil
	s.saved = false
	s.startedAt = time.Time{}
	s.completedAt = time.Time{}
	s.touchedAt = s.now()
}

// Result returns the outcome of a completed session.
func (s *QuizSession) Result() (domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted {
		return domain.QuizResult{}, domain.ErrQuizNotCompleted
	}
	return domain.QuizResult{
		Level:          s.level,
		Score:          s.score,
		TotalQuestions: domain.QuestionsPerQuiz,
		Percentage:     domain.Percentage(s.score, domain.QuestionsPerQuiz),
		Passed:         domain.Passed(s.score),
		Answers:        append([]domain.Answer(nil), s.answers...),
		CompletedAt:    s.completedAt,
	}, nil
}

// MarkSaved flips the saved flag of a completed session. It returns false if
// the session is not completed or was already marked.
func (s *QuizSession) MarkSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted || s.saved {
		return false
	}
	s.saved = true
	return true
}

func (s *QuizSession) releaseSaved() {
	s.mu.Lock()
	s.saved = false
	s.mu.Unlock()
}

// QuestionView is a question as shown to the user, without the answer key.
type QuestionView struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID         string           `json:"id,omitempty"`
	Level      domain.Level     `json:"level"`
	State      State            `json:"state"`
	Index      int              `json:"index"`
	Total      int              `json:"total"`
	Score      int              `json:"score"`
	Question   *QuestionView    `json:"question,omitempty"`
	Answers    []domain.Answer  `json:"answers"`
	Feedback   *domain.Feedback `json:"feedback,omitempty"`
	Saved      bool             `json:"saved"`
	Passed     bool             `json:"passed"`
	Percentage float64          `json:"percentage"`
}

// View snapshots the session. It never changes state.
func (s *QuizSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		ID:      s.id,
		Level:   s.level,
		State:   s.state,
		Index:   s.current,
		Total:   domain.QuestionsPerQuiz,
		Score:   s.score,
		Answers: append([]domain.Answer(nil), s.answers...),
		Saved:   s.saved,
	}
	if s.feedback != nil {
		fb := *s.feedback
		v.Feedback = &fb
	}
	switch s.state {
	case StateInProgress:
		q := s.currentQuestionLocked()
		v.Question = &QuestionView{Text: q.Text, Options: append([]string(nil), q.Options...)}
	case StateCompleted:
		v.Passed = domain.Passed(s.score)
		v.Percentage = domain.Percentage(s.score, domain.QuestionsPerQuiz)
	}
	return v
}

func (s *QuizSession) currentQuestionLocked() domain.Question {
	return s.questions[s.order[s.current]]
}
