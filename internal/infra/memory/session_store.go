package memory

import (
	"context"
	"sync"
	"time"
)

// SessionStore is an in-memory implementation of app.SessionStore. With a
// positive idle TTL, sessions untouched for longer than the TTL are evicted.
type SessionStore[T any] struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[int64]entry[T]
}

type entry[T any] struct {
	session   T
	touchedAt time.Time
}

func NewSessionStore[T any](ttl time.Duration) *SessionStore[T] {
	return newSessionStoreWithClock[T](ttl, time.Now)
}

func newSessionStoreWithClock[T any](ttl time.Duration, clock func() time.Time) *SessionStore[T] {
	return &SessionStore[T]{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[int64]entry[T]),
	}
}

func (s *SessionStore[T]) Get(_ context.Context, userID int64) (T, bool, error) {
	s.mu.RLock()
	e, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		var zero T
		return zero, false, nil
	}
	return e.session, true, nil
}

func (s *SessionStore[T]) Put(_ context.Context, userID int64, session T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = entry[T]{session: session, touchedAt: s.clock()}
	return nil
}

func (s *SessionStore[T]) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// Evict drops expired sessions and returns how many were removed.
func (s *SessionStore[T]) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired ones included.
func (s *SessionStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunEviction calls Evict every interval until ctx is done.
func (s *SessionStore[T]) RunEviction(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

func (s *SessionStore[T]) expired(e entry[T]) bool {
	return s.ttl > 0 && s.clock().Sub(e.touchedAt) > s.ttl
}
