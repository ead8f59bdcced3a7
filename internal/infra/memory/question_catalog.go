package memory

import (
	"context"
	"math/rand"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// QuestionCatalog is an in-memory question source (useful for tests/demos).
type QuestionCatalog struct {
	mu        sync.RWMutex
	questions []domain.Question
	byID      map[string]int
	intn      func(n int) int
}

func NewQuestionCatalog(questions []domain.Question) *QuestionCatalog {
	c := &QuestionCatalog{
		byID: make(map[string]int, len(questions)),
		intn: rand.Intn,
	}
	for _, q := range questions {
		c.add(q)
	}
	return c
}

// Add inserts or replaces a question.
func (c *QuestionCatalog) Add(q domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(q)
}

func (c *QuestionCatalog) add(q domain.Question) {
	if idx, ok := c.byID[q.ID]; ok {
		c.questions[idx] = q
		return
	}
	c.byID[q.ID] = len(c.questions)
	c.questions = append(c.questions, q)
}

// FetchRandom draws min(count, catalog size) questions without replacement using a partial
// Fisher-Yates shuffle over the whole catalog, so every subset is equally likely.
func (c *QuestionCatalog) FetchRandom(_ context.Context, count int) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.questions)
	if count > n {
		count = n
	}
	if count <= 0 {
		return []domain.Question{}, nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	out := make([]domain.Question, count)
	for i := 0; i < count; i++ {
		j := i + c.intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = c.questions[idx[i]]
	}
	return out, nil
}

func (c *QuestionCatalog) GetQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		idx, ok := c.byID[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, c.questions[idx])
	}
	return out, nil
}

// Len reports the catalog size.
func (c *QuestionCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.questions)
}
