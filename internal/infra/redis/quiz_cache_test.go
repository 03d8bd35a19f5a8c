package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-bot/internal/app"
	"quiz-bot/internal/domain"
	"quiz-bot/internal/infra/memory"
)

func TestQuizCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	quiz := sampleQuiz(t, store)
	backend := &countingQuizzes{QuizRepository: store}
	cache := NewQuizCache(newClient(mr), backend, time.Minute)

	got, err := cache.FindQuizByCode(context.Background(), quiz.Code)
	if err != nil {
		t.Fatalf("find quiz: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected backend called once, got %d", backend.calls)
	}
	if !mr.Exists("quizbot:quiz:" + quiz.Code) {
		t.Fatalf("expected quiz to be cached")
	}

	// Second call should hit cache, backend not incremented.
	again, err := cache.FindQuizByCode(context.Background(), quiz.Code)
	if err != nil {
		t.Fatalf("find quiz 2: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected cache hit, backend calls=%d", backend.calls)
	}
	if again.ID != got.ID || len(again.Questions) != 2 || again.Questions[1].Options[1].Text != "Paris" {
		t.Fatalf("cached quiz lost content: %+v", again)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	quiz := sampleQuiz(t, store)
	backend := &countingQuizzes{QuizRepository: store}
	cache := NewQuizCache(newClient(mr), backend, time.Minute)

	_, _ = cache.FindQuizByCode(context.Background(), quiz.Code)
	mr.FastForward(2 * time.Minute)
	_, _ = cache.FindQuizByCode(context.Background(), quiz.Code)
	if backend.calls != 2 {
		t.Fatalf("expected reload after ttl, backend calls=%d", backend.calls)
	}
}

func TestQuizCacheInvalidatesClosedQuiz(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	quiz := sampleQuiz(t, store)
	cache := NewQuizCache(newClient(mr), store, time.Hour)
	ctx := context.Background()

	if _, err := cache.FindQuizByCode(ctx, quiz.Code); err != nil {
		t.Fatalf("find quiz: %v", err)
	}
	if err := cache.DeactivateQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if mr.Exists("quizbot:quiz:" + quiz.Code) {
		t.Fatalf("expected cache entry to be removed")
	}
	if _, err := cache.FindQuizByCode(ctx, quiz.Code); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingQuizzes struct {
	app.QuizRepository
	calls int
}

func (c *countingQuizzes) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	c.calls++
	return c.QuizRepository.FindQuizByCode(ctx, code)
}

func sampleQuiz(t *testing.T, store *memory.Store) domain.Quiz {
	t.Helper()
	tf, err := domain.NewQuestion(1, "The sun is a star.", domain.KindTrueFalse, nil, domain.AnswerTrue)
	if err != nil {
		t.Fatalf("tf question: %v", err)
	}
	options, err := domain.ParseOptions("London\nParis\nRome")
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	mcq, err := domain.NewQuestion(2, "Capital of France?", domain.KindMultipleChoice, options, "b")
	if err != nil {
		t.Fatalf("mcq question: %v", err)
	}
	quiz, err := store.CreateQuiz(context.Background(), 1, "General", "Mixed", []domain.Question{tf, mcq})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quiz
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
