package app

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultLeaderboardSize is the number of entries returned by GetLeaderboard.
const DefaultLeaderboardSize = 50

// LeaderboardService ranks users by their aggregates. It never writes to the user store.
type LeaderboardService struct {
	users UserRepository
	size  int
	ttl   time.Duration
	now   func() time.Time
	sf    singleflight.Group

	mu         sync.RWMutex
	cached     *ranking
	generation uint64

	subMu       sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

// ranking is an immutable, fully ordered view of every aggregate.
type ranking struct {
	entries     []domain.LeaderboardEntry
	indexByUser map[string]int
	builtAt     time.Time
}

// NewLeaderboardService builds a service returning size entries and caching the ordering
// for ttl. A ttl of zero rebuilds on every call.
func NewLeaderboardService(users UserRepository, size int, ttl time.Duration) *LeaderboardService {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &LeaderboardService{
		users:       users,
		size:        size,
		ttl:         ttl,
		now:         time.Now,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// GetLeaderboard returns the top entries. When requestingUserID names a ranked user, their
// rank is included even if they fall outside the top entries.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, requestingUserID string) (domain.Leaderboard, error) {
	r, err := s.snapshot(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb := r.top(s.size)
	if requestingUserID != "" {
		if idx, ok := r.indexByUser[requestingUserID]; ok {
			entry := r.entries[idx]
			lb.UserRank = &domain.UserRank{Rank: entry.Rank, TotalScore: entry.TotalScore}
		}
	}
	return lb, nil
}

// GetProfile returns the user's aggregate with their rank.
func (s *LeaderboardService) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	if userID == "" {
		return domain.Profile{}, domain.ErrMissingIdentity
	}
	agg, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	r, err := s.snapshot(ctx)
	if err != nil {
		return domain.Profile{}, err
	}

	profile := domain.Profile{UserAggregate: agg, Rank: r.rankOf(agg)}
	if agg.QuizzesCompleted > 0 {
		profile.AverageScore = agg.TotalScore / float64(agg.QuizzesCompleted)
	}
	return profile, nil
}

// SessionCompleted drops the cached ordering and pushes a fresh leaderboard to subscribers.
func (s *LeaderboardService) SessionCompleted(ctx context.Context, agg domain.UserAggregate) {
	s.invalidate()

	s.subMu.Lock()
	listeners := len(s.subscribers)
	s.subMu.Unlock()
	if listeners == 0 {
		return
	}

	r, err := s.snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Str("user_id", agg.UserID).Msg("rebuild leaderboard for subscribers")
		return
	}
	s.broadcast(r.top(s.size))
}

// Subscribe returns a channel that receives leaderboard snapshots after each completed session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LeaderboardService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	r, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.Leaderboard, 8)
	ch <- r.top(s.size)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel, nil
}

func (s *LeaderboardService) broadcast(lb domain.Leaderboard) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- lb:
		default:
			// Slow reader: drop the oldest snapshot so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

func (s *LeaderboardService) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.generation++
	s.mu.Unlock()
}

// snapshot returns the cached ranking or rebuilds it. Rebuilds are shared per generation:
// after invalidate, callers start a new rebuild instead of joining one that may have read
// the store before the change, and a rebuild that straddles invalidate is not cached.
func (s *LeaderboardService) snapshot(ctx context.Context) (*ranking, error) {
	if r := s.fresh(); r != nil {
		return r, nil
	}

	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("ranking:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		if r := s.fresh(); r != nil {
			return r, nil
		}
		aggs, err := s.users.List(ctx)
		if err != nil {
			return nil, err
		}
		r := buildRanking(aggs, s.now())
		if s.ttl > 0 {
			s.mu.Lock()
			if s.generation == gen {
				s.cached = r
			}
			s.mu.Unlock()
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ranking), nil
}

func (s *LeaderboardService) fresh() *ranking {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil && s.now().Sub(s.cached.builtAt) < s.ttl {
		return s.cached
	}
	return nil
}

func buildRanking(aggs []domain.UserAggregate, now time.Time) *ranking {
	sorted := make([]domain.UserAggregate, len(aggs))
	copy(sorted, aggs)
	sort.Slice(sorted, func(i, j int) bool {
		return rankedBefore(sorted[i], sorted[j])
	})

	r := &ranking{
		entries:     make([]domain.LeaderboardEntry, len(sorted)),
		indexByUser: make(map[string]int, len(sorted)),
		builtAt:     now,
	}
	for i, agg := range sorted {
		r.entries[i] = domain.LeaderboardEntry{
			Rank:             i + 1,
			UserID:           agg.UserID,
			DisplayName:      agg.DisplayName,
			TotalScore:       agg.TotalScore,
			QuizzesCompleted: agg.QuizzesCompleted,
			CreatedAt:        agg.CreatedAt,
		}
		r.indexByUser[agg.UserID] = i
	}
	return r
}

// rankedBefore orders by total score descending, then earliest account, then user id so
// equal timestamps still sort deterministically.
func rankedBefore(a, b domain.UserAggregate) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}

func (r *ranking) top(n int) domain.Leaderboard {
	if n > len(r.entries) {
		n = len(r.entries)
	}
	entries := make([]domain.LeaderboardEntry, n)
	copy(entries, r.entries[:n])
	return domain.Leaderboard{
		Entries:    entries,
		TotalUsers: len(r.entries),
		UpdatedAt:  r.builtAt,
	}
}

// rankOf returns the 1-based position agg takes in the ordering. agg does not have to match
// the snapshot, so a stale cache still yields a sensible rank for a freshly updated user.
func (r *ranking) rankOf(agg domain.UserAggregate) int {
	if idx, ok := r.indexByUser[agg.UserID]; ok && r.entries[idx].TotalScore == agg.TotalScore {
		return idx + 1
	}
	rank := 1
	for _, e := range r.entries {
		if e.UserID == agg.UserID {
			continue
		}
		other := domain.UserAggregate{UserID: e.UserID, TotalScore: e.TotalScore, CreatedAt: e.CreatedAt}
		if rankedBefore(other, agg) {
			rank++
		}
	}
	return rank
}
