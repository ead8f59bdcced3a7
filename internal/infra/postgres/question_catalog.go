package postgres

import (
	"context"
	"encoding/json"

	"trivia-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const questionColumns = `id, category, type, difficulty, question, correct_answer, incorrect_answers`

// QuestionCatalog reads questions from Postgres.
type QuestionCatalog struct {
	pool *pgxpool.Pool
}

func NewQuestionCatalog(pool *pgxpool.Pool) *QuestionCatalog {
	return &QuestionCatalog{pool: pool}
}

// FetchRandom orders the whole table by an independent random key per row, so any subset of
// the requested size is equally likely regardless of physical layout.
func (c *QuestionCatalog) FetchRandom(ctx context.Context, count int) ([]domain.Question, error) {
	if count <= 0 {
		return []domain.Question{}, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY random() LIMIT $1`, count)
	if err != nil {
		return nil, domain.Unavailable("fetch random questions", err)
	}
	return scanQuestions(rows)
}

func (c *QuestionCatalog) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Unavailable("get questions", err)
	}
	found, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

// Count returns the catalog size.
func (c *QuestionCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM questions`).Scan(&n); err != nil {
		return 0, domain.Unavailable("count questions", err)
	}
	return n, nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	out := []domain.Question{}
	for rows.Next() {
		var (
			q         domain.Question
			incorrect []byte
		)
		if err := rows.Scan(&q.ID, &q.Category, &q.Type, &q.Difficulty, &q.Prompt, &q.CorrectAnswer, &incorrect); err != nil {
			return nil, domain.Unavailable("scan question", err)
		}
		if err := json.Unmarshal(incorrect, &q.IncorrectAnswers); err != nil {
			return nil, domain.Unavailable("decode incorrect answers", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("read questions", err)
	}
	return out, nil
}
