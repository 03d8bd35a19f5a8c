package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-bot/internal/app"
	"quiz-bot/internal/domain"
)

// QuizCache caches code lookups of a QuizRepository with TTL so joins do not
// hit the database every time. Closing a quiz drops its entry.
type QuizCache struct {
	app.QuizRepository

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.Mutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(next app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		QuizRepository: next,
		ttl:            ttl,
		clock:          time.Now,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:          make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	code = domain.NormalizeCode(code)
	if quiz, ok := c.lookup(code); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		if quiz, ok := c.lookup(code); ok {
			return quiz, nil
		}
		quiz, err := c.QuizRepository.FindQuizByCode(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}
		expiresAt := c.clock().Add(c.ttlWithJitter())
		c.mu.Lock()
		c.cache[code] = cachedQuiz{quiz: quiz, expiresAt: expiresAt}
		c.mu.Unlock()
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
	c.mu.Lock()
	for code, entry := range c.cache {
		if entry.quiz.ID == quizID {
			delete(c.cache, code)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *QuizCache) lookup(code string) (domain.Quiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[code]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
