package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quiz-bot/internal/domain"
)

func TestStoreUpsertTeacherIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, err := store.UpsertTeacher(ctx, 42, "ann", "Ann Smith")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.UpsertTeacher(ctx, 42, "ann2", "Ann S.")
	if err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same teacher record, got %d and %d", first.ID, second.ID)
	}
	if second.Username != "ann2" || second.FullName != "Ann S." {
		t.Fatalf("expected refreshed names, got %+v", second)
	}
	if ok, _ := store.IsTeacher(ctx, 42); !ok {
		t.Fatalf("expected 42 to be a teacher")
	}
	if ok, _ := store.IsTeacher(ctx, 43); ok {
		t.Fatalf("expected 43 not to be a teacher")
	}
}

func TestStoreRetriesCodeCollisions(t *testing.T) {
	ctx := context.Background()
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	store := NewStore(WithCodeGenerator(func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}))

	first, err := store.CreateQuiz(ctx, 1, "First", "", nil)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := store.CreateQuiz(ctx, 1, "Second", "", nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Code != "AAAAAA" || second.Code != "BBBBBB" {
		t.Fatalf("expected distinct codes, got %s and %s", first.Code, second.Code)
	}
}

func TestStoreCodeUniqueAcrossClosedQuizzes(t *testing.T) {
	ctx := context.Background()
	calls := 0
	store := NewStore(WithCodeGenerator(func() string {
		calls++
		return "SAME00"
	}))

	quiz, err := store.CreateQuiz(ctx, 1, "First", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DeactivateQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = store.CreateQuiz(ctx, 1, "Second", "", nil)
	if !errors.Is(err, domain.ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
	if calls != 1+domain.MaxCodeAttempts {
		t.Fatalf("expected %d generator calls, got %d", 1+domain.MaxCodeAttempts, calls)
	}
}

func TestStoreFindQuizByCode(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := publishSample(t, store)

	got, err := store.FindQuizByCode(ctx, " "+strings.ToLower(quiz.Code)+" ")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if got.ID != quiz.ID || got.Questions[0].CorrectAnswer != domain.AnswerTrue {
		t.Fatalf("unexpected quiz %+v", got)
	}

	if err := store.DeactivateQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.FindQuizByCode(ctx, quiz.Code); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected closed quiz to be hidden, got %v", err)
	}
	if _, err := store.FindQuizByID(ctx, quiz.ID); err != nil {
		t.Fatalf("expected closed quiz reachable by id, got %v", err)
	}
	if _, err := store.FindQuizByID(ctx, 999); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStoreListsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))

	old, _ := store.CreateQuiz(ctx, 1, "Old", "", nil)
	now = now.Add(time.Hour)
	recent, _ := store.CreateQuiz(ctx, 1, "Recent", "", nil)
	sameTime, _ := store.CreateQuiz(ctx, 1, "Same time", "", nil)
	_, _ = store.CreateQuiz(ctx, 2, "Other teacher", "", nil)

	quizzes, err := store.ListQuizzesByTeacher(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int64{sameTime.ID, recent.ID, old.ID}
	if len(quizzes) != len(want) {
		t.Fatalf("expected %d quizzes, got %d", len(want), len(quizzes))
	}
	for i, id := range want {
		if quizzes[i].ID != id {
			t.Fatalf("position %d: expected quiz %d, got %d", i, id, quizzes[i].ID)
		}
	}
}

func TestStoreAttemptLifecycleAndStatistics(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := publishSample(t, store)

	if stats, err := store.QuizStatistics(ctx, quiz.ID); err != nil || stats != nil {
		t.Fatalf("expected no statistics before attempts, got %+v err=%v", stats, err)
	}

	scores := []struct{ score, total int }{{1, 1}, {0, 1}, {1, 1}}
	for i, s := range scores {
		attempt, err := store.StartAttempt(ctx, quiz.ID, int64(100+i), "Student")
		if err != nil {
			t.Fatalf("start attempt: %v", err)
		}
		if err := store.RecordAnswer(ctx, attempt.ID, 1, domain.AnswerTrue, s.score == 1); err != nil {
			t.Fatalf("record answer: %v", err)
		}
		done, err := store.FinalizeAttempt(ctx, attempt.ID, s.score, s.total)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if !done.Completed || done.CompletedAt == nil || done.Percentage != s.score*100 {
			t.Fatalf("unexpected finalized attempt %+v", done)
		}
	}
	// an open attempt counts as a student but not in statistics
	if _, err := store.StartAttempt(ctx, quiz.ID, 200, "Late"); err != nil {
		t.Fatalf("start open attempt: %v", err)
	}

	stats, err := store.QuizStatistics(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.AttemptCount != 3 || stats.MaxScore != 1 || stats.MinScore != 0 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
	if stats.AvgPercentage != 66.7 || stats.AvgScore != 0.7 {
		t.Fatalf("expected averages rounded to one decimal, got %+v", stats)
	}

	got, _ := store.FindQuizByID(ctx, quiz.ID)
	if got.StudentCount != 4 {
		t.Fatalf("expected student count 4, got %d", got.StudentCount)
	}
}

func TestStoreListAttemptsByStudent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))
	quiz := publishSample(t, store)

	first, _ := store.StartAttempt(ctx, quiz.ID, 7, "Bo")
	_, _ = store.FinalizeAttempt(ctx, first.ID, 1, 1)
	now = now.Add(time.Minute)
	second, _ := store.StartAttempt(ctx, quiz.ID, 7, "Bo")
	_, _ = store.FinalizeAttempt(ctx, second.ID, 0, 1)
	_, _ = store.StartAttempt(ctx, quiz.ID, 7, "Bo")

	attempts, err := store.ListAttemptsByStudent(ctx, 7)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected completed attempts only, got %d", len(attempts))
	}
	if attempts[0].ID != second.ID || attempts[1].ID != first.ID {
		t.Fatalf("expected most recent first, got %d then %d", attempts[0].ID, attempts[1].ID)
	}
}

func TestStoreUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.RecordAnswer(ctx, 5, 1, "a", false); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := store.FinalizeAttempt(ctx, 5, 0, 1); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := store.StartAttempt(ctx, 5, 1, "x"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
