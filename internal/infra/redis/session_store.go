package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"trivia-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SessionStore keeps each quiz session as a JSON document under quiz:session:{id}.
// Appends are optimistic WATCH/MULTI transactions on that key.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds a store; ttl of zero keeps sessions until removed externally.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	if session.Answers == nil {
		session.Answers = []domain.Answer{}
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return domain.Unavailable("create session", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return s.read(ctx, s.client, sessionID)
}

func (s *SessionStore) AppendAnswer(ctx context.Context, sessionID string, expectedAnswers int, answer domain.Answer) (domain.QuizSession, error) {
	key := s.key(sessionID)
	var next domain.QuizSession
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		session, err := s.read(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(session.Answers) != expectedAnswers {
			return domain.ErrConcurrentUpdate
		}
		if session.IsComplete() {
			return domain.ErrSessionAlreadyComplete
		}
		next = session.WithAnswer(answer)
		return s.write(ctx, tx, key, next)
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.QuizSession{}, domain.ErrConcurrentUpdate
	}
	if err != nil {
		return domain.QuizSession{}, s.wrap("append answer", err)
	}
	return next, nil
}

func (s *SessionStore) MarkPropagated(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			session, err := s.read(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if session.Propagated {
				return nil
			}
			session.Propagated = true
			return s.write(ctx, tx, key, session)
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	return s.wrap("mark propagated", err)
}

func (s *SessionStore) read(ctx context.Context, c getter, sessionID string) (domain.QuizSession, error) {
	raw, err := c.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, domain.Unavailable("get session", err)
	}
	var session domain.QuizSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.QuizSession{}, domain.Unavailable("decode session", err)
	}
	return session, nil
}

func (s *SessionStore) write(ctx context.Context, tx *redis.Tx, key string, session domain.QuizSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, redis.KeepTTL)
		return nil
	})
	return err
}

// wrap passes domain errors through and marks everything else as a store failure.
func (s *SessionStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrValidation, domain.ErrStoreUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return domain.Unavailable(op, err)
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
