package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"quiz-bot/internal/domain"
)

// Store keeps teachers, quizzes and attempts in process memory. It implements
// app.Gateway for single-instance deployments and tests.
type Store struct {
	clock   func() time.Time
	newCode domain.CodeGenerator

	mu        sync.RWMutex
	nextID    int64
	teachers  map[int64]*domain.Teacher // by external id
	quizzes   map[int64]*domain.Quiz
	codes     map[string]int64
	attempts  map[int64]*domain.Attempt
	createdAt map[int64]int64 // quiz id -> insertion sequence, tie-break for equal timestamps
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithCodeGenerator overrides quiz code generation.
func WithCodeGenerator(gen domain.CodeGenerator) Option {
	return func(s *Store) { s.newCode = gen }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:     time.Now,
		newCode:   domain.RandomCode,
		teachers:  make(map[int64]*domain.Teacher),
		quizzes:   make(map[int64]*domain.Quiz),
		codes:     make(map[string]int64),
		attempts:  make(map[int64]*domain.Attempt),
		createdAt: make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) UpsertTeacher(_ context.Context, externalID int64, username, fullName string) (domain.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.teachers[externalID]; ok {
		t.Username = username
		t.FullName = fullName
		return *t, nil
	}
	s.nextID++
	t := &domain.Teacher{
		ID:         s.nextID,
		ExternalID: externalID,
		Username:   username,
		FullName:   fullName,
		CreatedAt:  s.clock(),
		Active:     true,
	}
	s.teachers[externalID] = t
	return *t, nil
}

func (s *Store) IsTeacher(_ context.Context, externalID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[externalID]
	return ok && t.Active, nil
}

func (s *Store) CreateQuiz(_ context.Context, teacherID int64, title, description string, questions []domain.Question) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := ""
	for i := 0; i < domain.MaxCodeAttempts; i++ {
		candidate := s.newCode()
		if _, taken := s.codes[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return domain.Quiz{}, domain.ErrCodeExhausted
	}

	s.nextID++
	quiz := &domain.Quiz{
		ID:          s.nextID,
		TeacherID:   teacherID,
		Code:        code,
		Title:       title,
		Description: description,
		Questions:   append([]domain.Question(nil), questions...),
		CreatedAt:   s.clock(),
		Active:      true,
	}
	s.quizzes[quiz.ID] = quiz
	s.codes[code] = quiz.ID
	s.createdAt[quiz.ID] = s.nextID
	return *quiz, nil
}

func (s *Store) FindQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[domain.NormalizeCode(code)]
	if !ok || !s.quizzes[id].Active {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *s.quizzes[id], nil
}

func (s *Store) FindQuizByID(_ context.Context, id int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *quiz, nil
}

func (s *Store) ListQuizzesByTeacher(_ context.Context, teacherID int64) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.TeacherID == teacherID && quiz.Active {
			out = append(out, *quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.createdAt[out[i].ID] > s.createdAt[out[j].ID]
	})
	return out, nil
}

func (s *Store) DeactivateQuiz(_ context.Context, quizID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Active = false
	return nil
}

func (s *Store) QuizStatistics(_ context.Context, quizID int64) (*domain.QuizStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		stats         domain.QuizStatistics
		sumScore, sum int
	)
	for _, a := range s.attempts {
		if a.QuizID != quizID || !a.Completed {
			continue
		}
		if stats.AttemptCount == 0 || a.Score > stats.MaxScore {
			stats.MaxScore = a.Score
		}
		if stats.AttemptCount == 0 || a.Score < stats.MinScore {
			stats.MinScore = a.Score
		}
		stats.AttemptCount++
		sumScore += a.Score
		sum += a.Percentage
	}
	if stats.AttemptCount == 0 {
		return nil, nil
	}
	stats.AvgScore = round1(float64(sumScore) / float64(stats.AttemptCount))
	stats.AvgPercentage = round1(float64(sum) / float64(stats.AttemptCount))
	return &stats, nil
}

func (s *Store) StartAttempt(_ context.Context, quizID, studentID int64, studentName string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Attempt{}, fmt.Errorf("start attempt for quiz %d: %w", quizID, domain.ErrQuizNotFound)
	}
	s.nextID++
	a := &domain.Attempt{
		ID:          s.nextID,
		QuizID:      quizID,
		StudentID:   studentID,
		StudentName: studentName,
		Answers:     make(map[int]domain.AnswerRecord),
		StartedAt:   s.clock(),
	}
	s.attempts[a.ID] = a
	quiz.StudentCount++
	return copyAttempt(a), nil
}

func (s *Store) RecordAnswer(_ context.Context, attemptID int64, ordinal int, answer string, isCorrect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	a.Answers[ordinal] = domain.AnswerRecord{Answer: answer, IsCorrect: isCorrect}
	return nil
}

func (s *Store) FinalizeAttempt(_ context.Context, attemptID int64, score, total int) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	now := s.clock()
	a.Score = score
	a.TotalQuestions = total
	a.Percentage = domain.Percentage(score, total)
	a.CompletedAt = &now
	a.Completed = true
	return copyAttempt(a), nil
}

func (s *Store) ListAttemptsByStudent(_ context.Context, studentID int64) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.Completed {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(*out[j].CompletedAt) {
			return out[i].CompletedAt.After(*out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Attempt returns a stored attempt, completed or not.
func (s *Store) Attempt(id int64) (domain.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, false
	}
	return copyAttempt(a), true
}

// AttemptCount returns the number of attempts, open ones included.
func (s *Store) AttemptCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

func copyAttempt(a *domain.Attempt) domain.Attempt {
	out := *a
	out.Answers = make(map[int]domain.AnswerRecord, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
