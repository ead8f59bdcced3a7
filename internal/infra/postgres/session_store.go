package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trivia-quiz-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const sessionColumns = `id, user_id, question_ids, answers, total_score, total_correct, total_wrong, propagated, created_at`

// SessionStore persists quiz sessions in quiz_sessions. Answers live in a JSONB array next
// to a plain answer_count column that serves as the compare-and-swap version.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	ids, err := json.Marshal(session.QuestionIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (id, user_id, question_ids, question_count, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)`,
		session.ID, session.UserID, string(ids), len(session.QuestionIDs), session.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrSessionExists
	}
	if err != nil {
		return domain.Unavailable("create session", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, err
}

// AppendAnswer is a single conditional UPDATE: the row only changes while answer_count still
// equals expectedAnswers, so the append and the totals delta commit together or not at all.
func (s *SessionStore) AppendAnswer(ctx context.Context, sessionID string, expectedAnswers int, answer domain.Answer) (domain.QuizSession, error) {
	entry, err := json.Marshal([]domain.Answer{answer})
	if err != nil {
		return domain.QuizSession{}, err
	}
	correct, wrong := 0, 1
	if answer.Grade == 1 {
		correct, wrong = 1, 0
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE quiz_sessions
		SET answers = answers || $3::jsonb,
		    answer_count = answer_count + 1,
		    total_score = total_score + $4,
		    total_correct = total_correct + $5,
		    total_wrong = total_wrong + $6
		WHERE id = $1 AND answer_count = $2 AND answer_count < question_count
		RETURNING `+sessionColumns,
		sessionID, expectedAnswers, string(entry), answer.Score, correct, wrong)
	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, err
	}

	// Nothing matched: work out why.
	var answered, total int
	err = s.pool.QueryRow(ctx, `SELECT answer_count, question_count FROM quiz_sessions WHERE id = $1`, sessionID).Scan(&answered, &total)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.QuizSession{}, domain.ErrSessionNotFound
	case err != nil:
		return domain.QuizSession{}, domain.Unavailable("append answer", err)
	case answered >= total:
		return domain.QuizSession{}, domain.ErrSessionAlreadyComplete
	default:
		return domain.QuizSession{}, domain.ErrConcurrentUpdate
	}
}

func (s *SessionStore) MarkPropagated(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_sessions SET propagated = true WHERE id = $1`, sessionID)
	if err != nil {
		return domain.Unavailable("mark propagated", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (domain.QuizSession, error) {
	var (
		session            domain.QuizSession
		rawIDs, rawAnswers []byte
	)
	err := row.Scan(
		&session.ID, &session.UserID, &rawIDs, &rawAnswers,
		&session.Totals.TotalScore, &session.Totals.TotalCorrect, &session.Totals.TotalWrong,
		&session.Propagated, &session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSession{}, err
	}
	if err != nil {
		return domain.QuizSession{}, domain.Unavailable("scan session", err)
	}
	if err := json.Unmarshal(rawIDs, &session.QuestionIDs); err != nil {
		return domain.QuizSession{}, fmt.Errorf("decode question ids: %w", err)
	}
	if err := json.Unmarshal(rawAnswers, &session.Answers); err != nil {
		return domain.QuizSession{}, fmt.Errorf("decode answers: %w", err)
	}
	session.Status = domain.SessionOpen
	if session.IsComplete() {
		session.Status = domain.SessionComplete
	}
	return session, nil
}
