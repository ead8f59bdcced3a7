package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"trivia-quiz-service/internal/domain"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// questionRow is the bun model for the questions table.
type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID               string   `bun:"id,pk"`
	Category         string   `bun:"category"`
	Type             string   `bun:"type"`
	Difficulty       string   `bun:"difficulty"`
	Question         string   `bun:"question"`
	CorrectAnswer    string   `bun:"correct_answer"`
	IncorrectAnswers []string `bun:"incorrect_answers,type:jsonb"`
}

// OpenBun opens a bun handle over the pgdriver connector.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// SeedQuestions upserts questions into the catalog and returns how many were written. Questions
// without an id get a fresh uuid. When clearFirst is set the catalog is emptied first, inside the
// same transaction.
func SeedQuestions(ctx context.Context, db *bun.DB, questions []domain.Question, clearFirst bool) (int, error) {
	rows := make([]questionRow, 0, len(questions))
	for i, q := range questions {
		if q.Prompt == "" || q.CorrectAnswer == "" {
			return 0, fmt.Errorf("%w: question %d needs question and correct_answer", domain.ErrValidation, i)
		}
		id := q.ID
		if id == "" {
			id = uuid.NewString()
		}
		incorrect := q.IncorrectAnswers
		if incorrect == nil {
			incorrect = []string{}
		}
		rows = append(rows, questionRow{
			ID:               id,
			Category:         q.Category,
			Type:             q.Type,
			Difficulty:       q.Difficulty,
			Question:         q.Prompt,
			CorrectAnswer:    q.CorrectAnswer,
			IncorrectAnswers: incorrect,
		})
	}

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if clearFirst {
			if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("category = EXCLUDED.category").
			Set("type = EXCLUDED.type").
			Set("difficulty = EXCLUDED.difficulty").
			Set("question = EXCLUDED.question").
			Set("correct_answer = EXCLUDED.correct_answer").
			Set("incorrect_answers = EXCLUDED.incorrect_answers").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, domain.Unavailable("seed questions", err)
	}
	return len(rows), nil
}
