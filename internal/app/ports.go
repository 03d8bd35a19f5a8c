package app

import (
	"context"

	"quiz-bot/internal/domain"
)

// TeacherRepository stores quiz authors.
type TeacherRepository interface {
	UpsertTeacher(ctx context.Context, externalID int64, username, fullName string) (domain.Teacher, error)
	IsTeacher(ctx context.Context, externalID int64) (bool, error)
}

// QuizRepository stores published quizzes.
type QuizRepository interface {
	// CreateQuiz publishes a quiz under a freshly generated unique code.
	CreateQuiz(ctx context.Context, teacherID int64, title, description string, questions []domain.Question) (domain.Quiz, error)
	// FindQuizByCode returns domain.ErrQuizNotFound unless an active quiz has the code.
	FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	FindQuizByID(ctx context.Context, id int64) (domain.Quiz, error)
	// ListQuizzesByTeacher returns active quizzes, most recent first.
	ListQuizzesByTeacher(ctx context.Context, teacherID int64) ([]domain.Quiz, error)
	DeactivateQuiz(ctx context.Context, quizID int64) error
	// QuizStatistics returns nil when the quiz has no completed attempts.
	QuizStatistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error)
}

// AttemptRepository stores student attempts.
type AttemptRepository interface {
	// StartAttempt creates an open attempt and bumps the quiz student count.
	StartAttempt(ctx context.Context, quizID, studentID int64, studentName string) (domain.Attempt, error)
	RecordAnswer(ctx context.Context, attemptID int64, ordinal int, answer string, isCorrect bool) error
	FinalizeAttempt(ctx context.Context, attemptID int64, score, total int) (domain.Attempt, error)
	// ListAttemptsByStudent returns completed attempts, most recently completed first.
	ListAttemptsByStudent(ctx context.Context, studentID int64) ([]domain.Attempt, error)
}

// Gateway is the full persistence surface used by the bot.
type Gateway interface {
	TeacherRepository
	QuizRepository
	AttemptRepository
}

// SessionStore keeps one ephemeral conversation state per user.
type SessionStore[T any] interface {
	Get(ctx context.Context, userID int64) (T, bool, error)
	Put(ctx context.Context, userID int64, session T) error
	Delete(ctx context.Context, userID int64) error
}
