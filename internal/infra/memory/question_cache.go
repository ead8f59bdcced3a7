package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionCache caches question lookups with TTL to avoid repeated catalog hits while grading.
// Random sampling always goes to the backing source.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

func (c *QuestionCache) FetchRandom(ctx context.Context, count int) ([]domain.Question, error) {
	questions, err := c.source.FetchRandom(ctx, count)
	if err != nil {
		return nil, err
	}
	c.store(c.clock(), questions)
	return questions, nil
}

func (c *QuestionCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	out, missing := c.lookup(ids)
	if len(missing) == 0 {
		return out, nil
	}

	for _, id := range missing {
		id := id
		_, err, _ := c.sf.Do(id, func() (interface{}, error) {
			if _, still := c.lookup([]string{id}); len(still) == 0 {
				return nil, nil
			}
			loaded, err := c.source.GetQuestions(ctx, []string{id})
			if err != nil {
				return nil, err
			}
			c.store(c.clock(), loaded)
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}

	out, missing = c.lookup(ids)
	if len(missing) > 0 {
		// Expired between fill and read (zero TTL); fall back to the source directly.
		return c.source.GetQuestions(ctx, ids)
	}
	return out, nil
}

func (c *QuestionCache) lookup(ids []string) ([]domain.Question, []string) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Question, len(ids))
	var missing []string
	for i, id := range ids {
		entry, ok := c.cache[id]
		if !ok || !entry.expiresAt.After(now) {
			missing = append(missing, id)
			continue
		}
		out[i] = entry.question
	}
	return out, missing
}

func (c *QuestionCache) store(now time.Time, questions []domain.Question) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range questions {
		c.cache[q.ID] = cachedQuestion{question: q, expiresAt: now.Add(c.ttlWithJitter())}
	}
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
