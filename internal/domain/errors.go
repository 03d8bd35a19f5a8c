package domain

import "errors"

var (
	// ErrSessionLost is returned when a transition references a session that no longer exists.
	ErrSessionLost = errors.New("session not found")
	// ErrEmptyText is returned when a required text answer is blank.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrTooFewOptions is returned when a multiple-choice question has fewer than two options.
	ErrTooFewOptions = errors.New("at least two options are required")
	// ErrInvalidQuestion indicates a question failed construction rules.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrQuizNotFound indicates no active quiz matches the lookup.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz indicates the quiz has no questions to answer.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrTeacherNotFound indicates the teacher record could not be loaded.
	ErrTeacherNotFound = errors.New("teacher not found")
	// ErrAttemptNotFound indicates the attempt record could not be loaded.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNotTeacher is returned when a user without teacher rights opens teacher features.
	ErrNotTeacher = errors.New("user is not a teacher")
	// ErrStaleAction indicates a button press that does not belong to the current step.
	ErrStaleAction = errors.New("stale action")
	// ErrCodeExhausted is returned when no unique quiz code could be generated.
	ErrCodeExhausted = errors.New("could not generate a unique quiz code")
)
