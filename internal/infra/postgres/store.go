package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-bot/internal/domain"
)

const uniqueViolation = "23505"

// Store persists teachers, quizzes and attempts in Postgres. Writes go through
// bun, reads through a pgx pool.
type Store struct {
	db      *bun.DB
	pool    *pgxpool.Pool
	newCode domain.CodeGenerator
	clock   func() time.Time
}

// Connect opens both connections for dsn.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return NewStore(db, pool, domain.RandomCode), nil
}

func NewStore(db *bun.DB, pool *pgxpool.Pool, newCode domain.CodeGenerator) *Store {
	return &Store{db: db, pool: pool, newCode: newCode, clock: time.Now}
}

// Close releases both connections.
func (s *Store) Close() error {
	s.pool.Close()
	return s.db.Close()
}

type teacherRow struct {
	bun.BaseModel `bun:"table:teachers"`

	ID         int64     `bun:"id,pk,autoincrement"`
	TelegramID int64     `bun:"telegram_id"`
	Username   string    `bun:"username"`
	FullName   string    `bun:"full_name"`
	CreatedAt  time.Time `bun:"created_at"`
	IsActive   bool      `bun:"is_active"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID            int64             `bun:"id,pk,autoincrement"`
	TeacherID     int64             `bun:"teacher_id"`
	QuizCode      string            `bun:"quiz_code"`
	Title         string            `bun:"title"`
	Description   string            `bun:"description"`
	Questions     []domain.Question `bun:"questions,type:jsonb"`
	CreatedAt     time.Time         `bun:"created_at"`
	IsActive      bool              `bun:"is_active"`
	TotalStudents int               `bun:"total_students"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:student_attempts"`

	ID                int64                       `bun:"id,pk,autoincrement"`
	QuizID            int64                       `bun:"quiz_id"`
	StudentTelegramID int64                       `bun:"student_telegram_id"`
	StudentName       string                      `bun:"student_name"`
	Answers           map[int]domain.AnswerRecord `bun:"answers,type:jsonb"`
	Score             int                         `bun:"score"`
	TotalQuestions    int                         `bun:"total_questions"`
	Percentage        int                         `bun:"percentage"`
	StartedAt         time.Time                   `bun:"started_at"`
	CompletedAt       *time.Time                  `bun:"completed_at"`
	IsCompleted       bool                        `bun:"is_completed"`
}

func (s *Store) UpsertTeacher(ctx context.Context, externalID int64, username, fullName string) (domain.Teacher, error) {
	row := teacherRow{
		TelegramID: externalID,
		Username:   username,
		FullName:   fullName,
		CreatedAt:  s.clock(),
		IsActive:   true,
	}
	err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (telegram_id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("full_name = EXCLUDED.full_name").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Teacher{}, fmt.Errorf("upsert teacher: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) IsTeacher(ctx context.Context, externalID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM teachers WHERE telegram_id=$1 AND is_active)`, externalID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return ok, nil
}

// CreateQuiz draws codes until one is free. A concurrent insert of the same
// code surfaces as a unique violation and is retried like a collision.
func (s *Store) CreateQuiz(ctx context.Context, teacherID int64, title, description string, questions []domain.Question) (domain.Quiz, error) {
	if questions == nil {
		questions = []domain.Question{}
	}
	for i := 0; i < domain.MaxCodeAttempts; i++ {
		code := s.newCode()

		var taken bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM quizzes WHERE quiz_code=$1)`, code).Scan(&taken); err != nil {
			return domain.Quiz{}, fmt.Errorf("check quiz code: %w", err)
		}
		if taken {
			continue
		}

		row := quizRow{
			TeacherID:   teacherID,
			QuizCode:    code,
			Title:       title,
			Description: description,
			Questions:   questions,
			CreatedAt:   s.clock(),
			IsActive:    true,
		}
		_, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
		}
		return row.toDomain(), nil
	}
	return domain.Quiz{}, domain.ErrCodeExhausted
}

const quizColumns = `id, teacher_id, quiz_code, title, description, questions, created_at, is_active, total_students`

func (s *Store) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE quiz_code=$1 AND is_active`, domain.NormalizeCode(code))
	return scanQuiz(row)
}

func (s *Store) FindQuizByID(ctx context.Context, id int64) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, id)
	return scanQuiz(row)
}

func (s *Store) ListQuizzesByTeacher(ctx context.Context, teacherID int64) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE teacher_id=$1 AND is_active ORDER BY created_at DESC, id DESC`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return out, nil
}

func (s *Store) DeactivateQuiz(ctx context.Context, quizID int64) error {
	res, err := s.db.NewUpdate().
		Model((*quizRow)(nil)).
		Set("is_active = FALSE").
		Where("id = ?", quizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) QuizStatistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error) {
	var stats domain.QuizStatistics
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(ROUND(AVG(score)::numeric, 1), 0)::float8,
		       COALESCE(ROUND(AVG(percentage)::numeric, 1), 0)::float8,
		       COALESCE(MAX(score), 0),
		       COALESCE(MIN(score), 0)
		FROM student_attempts
		WHERE quiz_id=$1 AND is_completed`, quizID).
		Scan(&stats.AttemptCount, &stats.AvgScore, &stats.AvgPercentage, &stats.MaxScore, &stats.MinScore)
	if err != nil {
		return nil, fmt.Errorf("quiz statistics: %w", err)
	}
	if stats.AttemptCount == 0 {
		return nil, nil
	}
	return &stats, nil
}

// StartAttempt inserts the attempt and bumps the quiz student count in one transaction.
func (s *Store) StartAttempt(ctx context.Context, quizID, studentID int64, studentName string) (domain.Attempt, error) {
	row := attemptRow{
		QuizID:            quizID,
		StudentTelegramID: studentID,
		StudentName:       studentName,
		Answers:           map[int]domain.AnswerRecord{},
		StartedAt:         s.clock(),
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*quizRow)(nil)).
			Set("total_students = total_students + 1").
			Where("id = ?", quizID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bump student count: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("start attempt for quiz %d: %w", quizID, domain.ErrQuizNotFound)
		}
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) RecordAnswer(ctx context.Context, attemptID int64, ordinal int, answer string, isCorrect bool) error {
	raw, err := json.Marshal(domain.AnswerRecord{Answer: answer, IsCorrect: isCorrect})
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*attemptRow)(nil)).
		Set("answers = jsonb_set(answers, ARRAY[?::text], ?::jsonb)", strconv.Itoa(ordinal), string(raw)).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *Store) FinalizeAttempt(ctx context.Context, attemptID int64, score, total int) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewUpdate().
		Model(&row).
		Set("score = ?", score).
		Set("total_questions = ?", total).
		Set("percentage = ?", domain.Percentage(score, total)).
		Set("completed_at = ?", s.clock()).
		Set("is_completed = TRUE").
		Where("id = ?", attemptID).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("finalize attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAttemptsByStudent(ctx context.Context, studentID int64) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, student_telegram_id, student_name, answers, score, total_questions,
		       percentage, started_at, completed_at, is_completed
		FROM student_attempts
		WHERE student_telegram_id=$1 AND is_completed
		ORDER BY completed_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var (
			a   domain.Attempt
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StudentName, &raw, &a.Score,
			&a.TotalQuestions, &a.Percentage, &a.StartedAt, &a.CompletedAt, &a.Completed); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Answers); err != nil {
				return nil, fmt.Errorf("unmarshal answers: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		raw  []byte
	)
	err := row.Scan(&quiz.ID, &quiz.TeacherID, &quiz.Code, &quiz.Title, &quiz.Description,
		&raw, &quiz.CreatedAt, &quiz.Active, &quiz.StudentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return quiz, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

func (r teacherRow) toDomain() domain.Teacher {
	return domain.Teacher{
		ID:         r.ID,
		ExternalID: r.TelegramID,
		Username:   r.Username,
		FullName:   r.FullName,
		CreatedAt:  r.CreatedAt,
		Active:     r.IsActive,
	}
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:           r.ID,
		TeacherID:    r.TeacherID,
		Code:         r.QuizCode,
		Title:        r.Title,
		Description:  r.Description,
		Questions:    r.Questions,
		CreatedAt:    r.CreatedAt,
		Active:       r.IsActive,
		StudentCount: r.TotalStudents,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	answers := r.Answers
	if answers == nil {
		answers = map[int]domain.AnswerRecord{}
	}
	return domain.Attempt{
		ID:             r.ID,
		QuizID:         r.QuizID,
		StudentID:      r.StudentTelegramID,
		StudentName:    r.StudentName,
		Answers:        answers,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Percentage:     r.Percentage,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Completed:      r.IsCompleted,
	}
}
