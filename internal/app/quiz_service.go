package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/scoring"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// QuestionSource supplies catalog questions.
type QuestionSource interface {
	// FetchRandom returns up to count distinct questions sampled uniformly from the catalog.
	FetchRandom(ctx context.Context, count int) ([]domain.Question, error)
	// GetQuestions returns the questions for ids in the same order.
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, Postgres).
type SessionRepository interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, sessionID string) (domain.QuizSession, error)
	// AppendAnswer appends answer and applies its totals delta in one atomic step, but only
	// while the session still holds expectedAnswers answers. Otherwise it returns
	// domain.ErrConcurrentUpdate and changes nothing.
	AppendAnswer(ctx context.Context, sessionID string, expectedAnswers int, answer domain.Answer) (domain.QuizSession, error)
	MarkPropagated(ctx context.Context, sessionID string) error
}

// UserRepository stores per-user aggregates.
type UserRepository interface {
	// Ensure creates a zeroed aggregate for userID if none exists and returns the stored one.
	Ensure(ctx context.Context, userID, displayName string, now time.Time) (domain.UserAggregate, error)
	Get(ctx context.Context, userID string) (domain.UserAggregate, error)
	// MergeCompletion atomically folds sessionTotal into the user's aggregate. It is keyed by
	// sessionID: a second call for the same session is a no-op and reports applied=false.
	MergeCompletion(ctx context.Context, userID, sessionID string, sessionTotal float64) (agg domain.UserAggregate, applied bool, err error)
	List(ctx context.Context) ([]domain.UserAggregate, error)
}

// CompletionListener is told about every aggregate change caused by a completed session.
type CompletionListener interface {
	SessionCompleted(ctx context.Context, agg domain.UserAggregate)
}

// maxAppendAttempts bounds the optimistic retry loop in SubmitAnswer. An append only loses
// to another successful append on the same session, and a session holds at most
// MaxQuestionCount answers.
const maxAppendAttempts = domain.MaxQuestionCount

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions      SessionRepository
	questions     QuestionSource
	users         UserRepository
	listener      CompletionListener
	questionCount int
	now           func() time.Time
	newID         func() string
	shuffle       func(n int, swap func(i, j int))
}

// Option customises a QuizService.
type Option func(*QuizService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithQuestionCount sets the session size used when a caller passes zero.
func WithQuestionCount(n int) Option {
	return func(s *QuizService) {
		if n > 0 && n <= domain.MaxQuestionCount {
			s.questionCount = n
		}
	}
}

// WithCompletionListener registers the listener notified after each propagated completion.
func WithCompletionListener(l CompletionListener) Option {
	return func(s *QuizService) { s.listener = l }
}

// WithShuffle replaces rand.Shuffle for option ordering.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *QuizService) { s.shuffle = shuffle }
}

func NewQuizService(sessions SessionRepository, questions QuestionSource, users UserRepository, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:      sessions,
		questions:     questions,
		users:         users,
		questionCount: domain.DefaultQuestionCount,
		now:           time.Now,
		newID:         uuid.NewString,
		shuffle:       rand.Shuffle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a new session for userID with up to questionCount random questions.
// A questionCount of zero selects the configured default.
func (s *QuizService) StartSession(ctx context.Context, userID, displayName string, questionCount int) (domain.SessionView, error) {
	if userID == "" {
		return domain.SessionView{}, domain.ErrMissingIdentity
	}
	if questionCount < 0 || questionCount > domain.MaxQuestionCount {
		return domain.SessionView{}, domain.ErrInvalidQuestionCount
	}
	if questionCount == 0 {
		questionCount = s.questionCount
	}

	questions, err := s.questions.FetchRandom(ctx, questionCount)
	if err != nil {
		return domain.SessionView{}, err
	}
	questions = distinct(questions)
	if len(questions) == 0 {
		return domain.SessionView{}, domain.ErrInsufficientCatalog
	}

	// The aggregate must exist before the session row references it.
	now := s.now()
	if _, err := s.users.Ensure(ctx, userID, displayName, now); err != nil {
		return domain.SessionView{}, err
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	session := domain.QuizSession{
		ID:          s.newID(),
		UserID:      userID,
		QuestionIDs: ids,
		Answers:     []domain.Answer{},
		Status:      domain.SessionOpen,
		CreatedAt:   now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.SessionView{}, err
	}

	log.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Int("questions", len(ids)).
		Msg("quiz session started")
	return domain.SessionView{QuizSession: session, Questions: s.publicQuestions(questions)}, nil
}

// GetSession returns a session with its question content resolved.
func (s *QuizService) GetSession(ctx context.Context, sessionID string) (domain.SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	questions, err := s.questions.GetQuestions(ctx, session.QuestionIDs)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.SessionView{QuizSession: session, Questions: s.publicQuestions(questions)}, nil
}

// CheckOwner returns ErrSessionNotFound unless sessionID exists and belongs to userID.
func (s *QuizService) CheckOwner(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return domain.ErrSessionNotFound
	}
	return nil
}

// RandomQuestions samples count questions without creating a session.
func (s *QuizService) RandomQuestions(ctx context.Context, count int) ([]domain.PublicQuestion, error) {
	if count < 0 || count > domain.MaxQuestionCount {
		return nil, domain.ErrInvalidQuestionCount
	}
	if count == 0 {
		count = s.questionCount
	}
	questions, err := s.questions.FetchRandom(ctx, count)
	if err != nil {
		return nil, err
	}
	questions = distinct(questions)
	if len(questions) == 0 {
		return nil, domain.ErrInsufficientCatalog
	}
	return s.publicQuestions(questions), nil
}

// SubmitAnswer grades one answer, records it and, when it is the last one, folds the
// session totals into the owner's aggregate.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.AnswerResult{}, err
		}
		if session.IsComplete() {
			if !session.Propagated {
				if err := s.propagate(ctx, session); err != nil {
					return domain.AnswerResult{}, err
				}
			}
			return domain.AnswerResult{}, domain.ErrSessionAlreadyComplete
		}
		if !session.HasQuestion(sub.QuestionID) {
			return domain.AnswerResult{}, domain.ErrUnknownQuestion
		}
		if session.Answered(sub.QuestionID) {
			return domain.AnswerResult{}, domain.ErrDuplicateAnswer
		}
		if err := scoring.ValidateElapsed(sub.ElapsedSeconds); err != nil {
			return domain.AnswerResult{}, err
		}

		answer, err := s.grade(ctx, sub)
		if err != nil {
			return domain.AnswerResult{}, err
		}

		updated, err := s.sessions.AppendAnswer(ctx, sessionID, len(session.Answers), answer)
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			log.Debug().Str("session_id", sessionID).Int("attempt", attempt+1).Msg("answer append lost race, retrying")
			continue
		}
		if err != nil {
			return domain.AnswerResult{}, err
		}

		result := domain.AnswerResult{
			QuestionID: answer.QuestionID,
			Grade:      answer.Grade,
			Score:      answer.Score,
			Totals:     updated.Totals,
			Completed:  updated.IsComplete(),
		}
		if updated.IsComplete() {
			if err := s.propagate(ctx, updated); err != nil {
				return result, fmt.Errorf("answer recorded, completion pending: %w", err)
			}
		}
		return result, nil
	}
	return domain.AnswerResult{}, domain.ErrConcurrentUpdate
}

func (s *QuizService) grade(ctx context.Context, sub domain.AnswerSubmission) (domain.Answer, error) {
	questions, err := s.questions.GetQuestions(ctx, []string{sub.QuestionID})
	if err != nil {
		return domain.Answer{}, err
	}
	if len(questions) != 1 {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}

	grade := scoring.Grade(sub.UserAnswer, questions[0].CorrectAnswer)
	score, err := scoring.Score(grade, sub.ElapsedSeconds)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{
		QuestionID:     sub.QuestionID,
		UserAnswer:     sub.UserAnswer,
		Grade:          grade,
		ElapsedSeconds: sub.ElapsedSeconds,
		Score:          score,
		AnsweredAt:     s.now(),
	}, nil
}

// propagate merges a complete session into its owner's aggregate. The merge is keyed by
// session id in the user store, so repeating it after a partial failure is harmless. The
// listener hears about a merge as soon as it applies, even if marking the session fails.
func (s *QuizService) propagate(ctx context.Context, session domain.QuizSession) error {
	agg, applied, err := s.users.MergeCompletion(ctx, session.UserID, session.ID, session.Totals.TotalScore)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Str("user_id", session.UserID).Msg("merge completed session")
		return err
	}
	if applied {
		log.Info().
			Str("session_id", session.ID).
			Str("user_id", session.UserID).
			Float64("session_score", session.Totals.TotalScore).
			Int("quizzes_completed", agg.QuizzesCompleted).
			Msg("quiz session completed")
		if s.listener != nil {
			s.listener.SessionCompleted(ctx, agg)
		}
	} else {
		log.Warn().Str("session_id", session.ID).Msg("completion already merged, skipping")
	}

	if err := s.sessions.MarkPropagated(ctx, session.ID); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("mark session propagated")
		return err
	}
	return nil
}

func (s *QuizService) publicQuestions(questions []domain.Question) []domain.PublicQuestion {
	out := make([]domain.PublicQuestion, len(questions))
	for i, q := range questions {
		out[i] = q.Public(s.shuffle)
	}
	return out
}

func distinct(questions []domain.Question) []domain.Question {
	seen := make(map[string]struct{}, len(questions))
	out := questions[:0:0]
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}
