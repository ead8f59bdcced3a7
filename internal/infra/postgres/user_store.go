package postgres

import (
	"context"
	"errors"
	"time"

	"trivia-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const userColumns = `id, display_name, total_score, quizzes_completed, best_score, created_at`

// UserStore keeps user aggregates in the users table. completed_sessions records every merged
// session so a merge can never be applied twice.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Ensure(ctx context.Context, userID, displayName string, now time.Time) (domain.UserAggregate, error) {
	if displayName == "" {
		displayName = userID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, userID, displayName, now)
	if err != nil {
		return domain.UserAggregate{}, domain.Unavailable("ensure user", err)
	}
	return s.Get(ctx, userID)
}

func (s *UserStore) Get(ctx context.Context, userID string) (domain.UserAggregate, error) {
	agg, err := scanAggregate(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAggregate{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.UserAggregate{}, domain.Unavailable("get user", err)
	}
	return agg, nil
}

// MergeCompletion claims the session id and applies the increments in one transaction. The
// increments are computed by Postgres, never read-modify-written here.
func (s *UserStore) MergeCompletion(ctx context.Context, userID, sessionID string, sessionTotal float64) (domain.UserAggregate, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("begin merge", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("merge completion", err)
	}
	if !exists {
		return domain.UserAggregate{}, false, domain.ErrUserNotFound
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO completed_sessions (session_id, user_id, total_score) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING`, sessionID, userID, sessionTotal)
	if err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("claim session", err)
	}
	if tag.RowsAffected() == 0 {
		agg, err := scanAggregate(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
		if err != nil {
			return domain.UserAggregate{}, false, domain.Unavailable("merge completion", err)
		}
		return agg, false, tx.Commit(ctx)
	}

	agg, err := scanAggregate(tx.QueryRow(ctx, `
		UPDATE users
		SET total_score = total_score + $2,
		    quizzes_completed = quizzes_completed + 1,
		    best_score = GREATEST(best_score, $2)
		WHERE id = $1
		RETURNING `+userColumns, userID, sessionTotal))
	if err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("merge completion", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("commit merge", err)
	}
	return agg, true, nil
}

func (s *UserStore) List(ctx context.Context) ([]domain.UserAggregate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY total_score DESC, created_at ASC, id ASC`)
	if err != nil {
		return nil, domain.Unavailable("list users", err)
	}
	defer rows.Close()

	out := []domain.UserAggregate{}
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, domain.Unavailable("scan user", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list users", err)
	}
	return out, nil
}

func scanAggregate(row pgx.Row) (domain.UserAggregate, error) {
	var agg domain.UserAggregate
	err := row.Scan(&agg.UserID, &agg.DisplayName, &agg.TotalScore, &agg.QuizzesCompleted, &agg.BestScore, &agg.CreatedAt)
	return agg, err
}
