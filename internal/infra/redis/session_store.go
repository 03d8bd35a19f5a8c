package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps conversation sessions in Redis as JSON so that several
// bot instances can share them. Every write refreshes the idle TTL.
type SessionStore[T any] struct {
	client *redis.Client
	role   string
	ttl    time.Duration
}

// NewSessionStore stores sessions under quizbot:session:<role>:<userID>.
func NewSessionStore[T any](client *redis.Client, role string, ttl time.Duration) *SessionStore[T] {
	return &SessionStore[T]{client: client, role: role, ttl: ttl}
}

func (s *SessionStore[T]) Get(ctx context.Context, userID int64) (T, bool, error) {
	var session T
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session, false, nil
	}
	if err != nil {
		return session, false, fmt.Errorf("get %s session: %w", s.role, err)
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return session, false, fmt.Errorf("decode %s session: %w", s.role, err)
	}
	return session, true, nil
}

func (s *SessionStore[T]) Put(ctx context.Context, userID int64, session T) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode %s session: %w", s.role, err)
	}
	if err := s.client.Set(ctx, s.key(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("put %s session: %w", s.role, err)
	}
	return nil
}

func (s *SessionStore[T]) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete %s session: %w", s.role, err)
	}
	return nil
}

func (s *SessionStore[T]) key(userID int64) string {
	return "quizbot:session:" + s.role + ":" + strconv.FormatInt(userID, 10)
}
