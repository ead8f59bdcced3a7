package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.QuizSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.QuizSession),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	if session.Answers == nil {
		session.Answers = []domain.Answer{}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// AppendAnswer swaps in a new session value under the write lock. Stored sessions are never
// mutated in place, so values handed out by Get stay valid.
func (s *SessionStore) AppendAnswer(_ context.Context, sessionID string, expectedAnswers int, answer domain.Answer) (domain.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if len(session.Answers) != expectedAnswers {
		return domain.QuizSession{}, domain.ErrConcurrentUpdate
	}
	if session.IsComplete() {
		return domain.QuizSession{}, domain.ErrSessionAlreadyComplete
	}
	next := session.WithAnswer(answer)
	s.sessions[sessionID] = next
	return next, nil
}

func (s *SessionStore) MarkPropagated(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Propagated = true
	s.sessions[sessionID] = session
	return nil
}
