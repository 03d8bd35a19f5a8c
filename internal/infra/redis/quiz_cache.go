package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-bot/internal/app"
	"quiz-bot/internal/domain"
)

// QuizCache caches published quizzes in Redis and falls back to the wrapped
// repository on a miss. A quiz is stored as JSON under quizbot:quiz:{code};
// quizbot:quiz-code:{id} points back at the code so closing can invalidate.
type QuizCache struct {
	app.QuizRepository

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, next app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		QuizRepository: next,
		client:         client,
		ttl:            ttl,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	code = domain.NormalizeCode(code)
	if quiz, ok := c.cached(ctx, code); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.cached(ctx, code); ok {
			return quiz, nil
		}
		quiz, err := c.QuizRepository.FindQuizByCode(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err == nil {
			ttl := c.ttlWithJitter()
			pipe := c.client.Pipeline()
			pipe.Set(ctx, quizKey(code), raw, ttl)
			pipe.Set(ctx, codeKey(quiz.ID), code, ttl)
			_, _ = pipe.Exec(ctx)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) DeactivateQuiz(ctx context.Context, quizID int64) error {
	if err := c.QuizRepository.DeactivateQuiz(ctx, quizID); err != nil {
		return err
	}
	code, err := c.client.Get(ctx, codeKey(quizID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.client.Del(ctx, quizKey(code), codeKey(quizID)).Err()
}

func (c *QuizCache) cached(ctx context.Context, code string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, quizKey(code)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func quizKey(code string) string {
	return "quizbot:quiz:" + code
}

func codeKey(quizID int64) string {
	return "quizbot:quiz-code:" + strconv.FormatInt(quizID, 10)
}
