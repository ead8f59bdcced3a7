package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches question records in Redis and falls back to the catalog on a miss.
// Questions are stored as: SET quiz:question:{questionID} {json}
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchRandom samples from the catalog and warms the cache with the picked questions.
func (c *QuestionCache) FetchRandom(ctx context.Context, count int) ([]domain.Question, error) {
	questions, err := c.source.FetchRandom(ctx, count)
	if err != nil {
		return nil, err
	}
	c.store(ctx, questions)
	return questions, nil
}

func (c *QuestionCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	if out, ok := c.lookup(ctx, ids); ok {
		return out, nil
	}

	result, err, _ := c.sf.Do(strings.Join(ids, ","), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if out, ok := c.lookup(ctx, ids); ok {
			return out, nil
		}
		questions, err := c.source.GetQuestions(ctx, ids)
		if err != nil {
			return nil, err
		}
		c.store(ctx, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// lookup returns the cached questions only when every id is present.
func (c *QuestionCache) lookup(ctx context.Context, ids []string) ([]domain.Question, bool) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, false
	}
	out := make([]domain.Question, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal([]byte(raw), &out[i]); err != nil {
			return nil, false
		}
	}
	return out, true
}

// store is best-effort: a failed cache write only costs a later catalog hit.
// Questions are immutable, so a zero ttl caches them without expiry.
func (c *QuestionCache) store(ctx context.Context, questions []domain.Question) {
	if len(questions) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(q.ID), data, c.ttlWithJitter())
	}
	_, _ = pipe.Exec(ctx)
}

func (c *QuestionCache) key(questionID string) string {
	return "quiz:question:" + questionID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
