package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"trivia-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const usersKey = "quiz:users"

// mergeScript applies a completed session to a user hash exactly once.
// KEYS[1] user hash, KEYS[2] set of merged session ids; ARGV[1] session id, ARGV[2] session total.
// Returns -1 for an unknown user, 0 when the session was already merged, 1 when applied.
var mergeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('HINCRBYFLOAT', KEYS[1], 'total_score', ARGV[2])
redis.call('HINCRBY', KEYS[1], 'quizzes_completed', 1)
local best = tonumber(redis.call('HGET', KEYS[1], 'best_score') or '0')
if tonumber(ARGV[2]) > best then
  redis.call('HSET', KEYS[1], 'best_score', ARGV[2])
end
return 1
`)

// UserStore keeps one hash per user plus a set of every user id for ranking.
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

func (s *UserStore) Ensure(ctx context.Context, userID, displayName string, now time.Time) (domain.UserAggregate, error) {
	if displayName == "" {
		displayName = userID
	}
	key := s.key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "display_name", displayName)
		pipe.HSetNX(ctx, key, "total_score", "0")
		pipe.HSetNX(ctx, key, "quizzes_completed", "0")
		pipe.HSetNX(ctx, key, "best_score", "0")
		pipe.HSetNX(ctx, key, "created_at", strconv.FormatInt(now.UnixNano(), 10))
		pipe.SAdd(ctx, usersKey, userID)
		return nil
	})
	if err != nil {
		return domain.UserAggregate{}, domain.Unavailable("ensure user", err)
	}
	return s.Get(ctx, userID)
}

func (s *UserStore) Get(ctx context.Context, userID string) (domain.UserAggregate, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return domain.UserAggregate{}, domain.Unavailable("get user", err)
	}
	if len(fields) == 0 {
		return domain.UserAggregate{}, domain.ErrUserNotFound
	}
	return decodeAggregate(userID, fields), nil
}

func (s *UserStore) MergeCompletion(ctx context.Context, userID, sessionID string, sessionTotal float64) (domain.UserAggregate, bool, error) {
	keys := []string{s.key(userID), s.key(userID) + ":sessions"}
	res, err := mergeScript.Run(ctx, s.client, keys, sessionID, strconv.FormatFloat(sessionTotal, 'f', -1, 64)).Int()
	if err != nil {
		return domain.UserAggregate{}, false, domain.Unavailable("merge completion", err)
	}
	if res < 0 {
		return domain.UserAggregate{}, false, domain.ErrUserNotFound
	}
	agg, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserAggregate{}, false, err
	}
	return agg, res == 1, nil
}

func (s *UserStore) List(ctx context.Context) ([]domain.UserAggregate, error) {
	ids, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, domain.Unavailable("list users", err)
	}
	if len(ids) == 0 {
		return []domain.UserAggregate{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.Unavailable("list users", err)
	}

	out := make([]domain.UserAggregate, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, decodeAggregate(ids[i], fields))
	}
	return out, nil
}

func (s *UserStore) key(userID string) string {
	return "quiz:user:" + userID
}

func decodeAggregate(userID string, fields map[string]string) domain.UserAggregate {
	total, _ := strconv.ParseFloat(fields["total_score"], 64)
	best, _ := strconv.ParseFloat(fields["best_score"], 64)
	completed, _ := strconv.Atoi(fields["quizzes_completed"])
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return domain.UserAggregate{
		UserID:           userID,
		DisplayName:      fields["display_name"],
		TotalScore:       total,
		QuizzesCompleted: completed,
		BestScore:        best,
		CreatedAt:        time.Unix(0, created).UTC(),
	}
}
