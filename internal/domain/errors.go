package domain

import "errors"

// Configuration errors: rejected synchronously, nothing is mutated.
var (
	// ErrInvalidLevel is returned for a level outside 0..LevelCount-1.
	ErrInvalidLevel = errors.New("invalid level")
	// ErrInsufficientQuestions indicates a level's pool cannot fill a quiz.
	ErrInsufficientQuestions = errors.New("not enough questions in level pool")
	// ErrInvalidQuestion indicates malformed question bank content.
	ErrInvalidQuestion = errors.New("invalid question")
)

// Usage errors: the request is rejected as a no-op.
var (
	// ErrNoOptionSelected is returned when an answer is submitted without an option.
	ErrNoOptionSelected = errors.New("no option selected")
	// ErrOptionNotFound indicates a submitted option is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuizNotStarted is returned when answering a quiz that is not in progress.
	ErrQuizNotStarted = errors.New("quiz not started")
	// ErrQuizCompleted is returned when mutating a finished quiz without resetting it.
	ErrQuizCompleted = errors.New("quiz already completed")
	// ErrQuizNotCompleted is returned when a result is requested before the last answer.
	ErrQuizNotCompleted = errors.New("quiz not completed")
	// ErrInvalidTransition covers any other state change the quiz does not allow.
	ErrInvalidTransition = errors.New("invalid quiz transition")
	// ErrAlreadyRecorded is returned when a completed session was already persisted.
	ErrAlreadyRecorded = errors.New("quiz attempt already recorded")
	// ErrSessionNotFound is returned when a user has no quiz session for a level.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionOwnership is returned when an identity touches another user's session.
	ErrSessionOwnership = errors.New("quiz session belongs to another user")
	// ErrUnknownField is returned for a progress field outside the updatable set.
	ErrUnknownField = errors.New("unknown progress field")
	// ErrEmptyUpdate is returned for a progress update that changes nothing.
	ErrEmptyUpdate = errors.New("empty progress update")
	// ErrInvalidUpdate is returned for out-of-range or mistyped update values.
	ErrInvalidUpdate = errors.New("invalid progress update")
	// ErrTimeSpentDecreased is returned when total time spent would go backwards.
	ErrTimeSpentDecreased = errors.New("total time spent cannot decrease")
)

// Store errors.
var (
	// ErrProgressNotFound is returned by repositories when no progress row exists.
	ErrProgressNotFound = errors.New("progress not found")
	// ErrUserNotFound is returned when the acting user cannot be resolved.
	ErrUserNotFound = errors.New("user not found")
)

// IsClientError reports whether err is a configuration or usage error that the
// caller can fix by changing its input.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidLevel, ErrInsufficientQuestions, ErrNoOptionSelected, ErrOptionNotFound,
		ErrQuizNotStarted, ErrQuizCompleted, ErrQuizNotCompleted, ErrInvalidTransition,
		ErrAlreadyRecorded, ErrSessionNotFound, ErrSessionOwnership, ErrUnknownField,
		ErrEmptyUpdate, ErrInvalidUpdate, ErrTimeSpentDecreased,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
