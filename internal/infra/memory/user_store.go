package memory

import (
	"context"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// UserStore is an in-memory implementation of app.UserRepository.
type UserStore struct {
	mu        sync.RWMutex
	users     map[string]domain.UserAggregate
	completed map[string]struct{}
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:     make(map[string]domain.UserAggregate),
		completed: make(map[string]struct{}),
	}
}

func (s *UserStore) Ensure(_ context.Context, userID, displayName string, now time.Time) (domain.UserAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agg, ok := s.users[userID]; ok {
		return agg, nil
	}
	if displayName == "" {
		displayName = userID
	}
	agg := domain.UserAggregate{UserID: userID, DisplayName: displayName, CreatedAt: now}
	s.users[userID] = agg
	return agg, nil
}

func (s *UserStore) Get(_ context.Context, userID string) (domain.UserAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.users[userID]
	if !ok {
		return domain.UserAggregate{}, domain.ErrUserNotFound
	}
	return agg, nil
}

func (s *UserStore) MergeCompletion(_ context.Context, userID, sessionID string, sessionTotal float64) (domain.UserAggregate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return domain.UserAggregate{}, false, domain.ErrUserNotFound
	}
	if _, done := s.completed[sessionID]; done {
		return agg, false, nil
	}
	agg = agg.Merge(sessionTotal)
	s.users[userID] = agg
	s.completed[sessionID] = struct{}{}
	return agg, true, nil
}

func (s *UserStore) List(_ context.Context) ([]domain.UserAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAggregate, 0, len(s.users))
	for _, agg := range s.users {
		out = append(out, agg)
	}
	return out, nil
}
