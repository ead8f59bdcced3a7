package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, users *memory.UserStore, id string, created time.Time, scores ...float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := users.Ensure(ctx, id, "name-"+id, created); err != nil {
		t.Fatalf("ensure %s: %v", id, err)
	}
	for i, s := range scores {
		if _, _, err := users.MergeCompletion(ctx, id, fmt.Sprintf("%s-s%d", id, i), s); err != nil {
			t.Fatalf("merge %s: %v", id, err)
		}
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	users := memory.NewUserStore()
	seedUser(t, users, "late", epoch.Add(2*time.Hour), 50)
	seedUser(t, users, "early", epoch.Add(time.Hour), 50)
	seedUser(t, users, "top", epoch.Add(3*time.Hour), 90, 10)
	seedUser(t, users, "fresh", epoch)

	service := app.NewLeaderboardService(users, 50, 0)
	lb, err := service.GetLeaderboard(context.Background(), "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}

	want := []string{"top", "early", "late", "fresh"}
	if len(lb.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(lb.Entries))
	}
	for i, id := range want {
		if lb.Entries[i].UserID != id || lb.Entries[i].Rank != i+1 {
			t.Fatalf("position %d: expected %s, got %+v", i, id, lb.Entries[i])
		}
	}
	for i := 1; i < len(lb.Entries); i++ {
		a, b := lb.Entries[i-1], lb.Entries[i]
		if a.TotalScore < b.TotalScore || (a.TotalScore == b.TotalScore && a.CreatedAt.After(b.CreatedAt)) {
			t.Fatalf("entries %d and %d out of order: %+v %+v", i-1, i, a, b)
		}
	}
	if lb.UserRank != nil {
		t.Fatalf("expected no user rank without identity")
	}
	if lb.TotalUsers != 4 {
		t.Fatalf("expected 4 users, got %d", lb.TotalUsers)
	}
	if lb.Entries[0].TotalScore != 100 || lb.Entries[0].QuizzesCompleted != 2 {
		t.Fatalf("unexpected top entry %+v", lb.Entries[0])
	}
}

func TestLeaderboardRanksUserOutsideTop(t *testing.T) {
	users := memory.NewUserStore()
	for i := 0; i < 60; i++ {
		seedUser(t, users, fmt.Sprintf("u%02d", i), epoch, float64(1000-i))
	}
	service := app.NewLeaderboardService(users, 50, 0)

	lb, err := service.GetLeaderboard(context.Background(), "u54")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 50 || lb.TotalUsers != 60 {
		t.Fatalf("expected top 50 of 60, got %d of %d", len(lb.Entries), lb.TotalUsers)
	}
	if lb.UserRank == nil || lb.UserRank.Rank != 55 || lb.UserRank.TotalScore != 946 {
		t.Fatalf("unexpected user rank %+v", lb.UserRank)
	}

	lb, _ = service.GetLeaderboard(context.Background(), "nobody")
	if lb.UserRank != nil {
		t.Fatalf("expected unknown user to be omitted, got %+v", lb.UserRank)
	}
}

func TestLeaderboardIsReadOnly(t *testing.T) {
	users := memory.NewUserStore()
	seedUser(t, users, "a", epoch, 10)
	seedUser(t, users, "b", epoch, 20)
	before, _ := users.List(context.Background())

	service := app.NewLeaderboardService(users, 50, 0)
	for i := 0; i < 3; i++ {
		if _, err := service.GetLeaderboard(context.Background(), "a"); err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
	}
	for _, agg := range before {
		after, _ := users.Get(context.Background(), agg.UserID)
		if after != agg {
			t.Fatalf("aggregate changed: %+v -> %+v", agg, after)
		}
	}
}

func TestLeaderboardCacheInvalidatedOnCompletion(t *testing.T) {
	users := memory.NewUserStore()
	seedUser(t, users, "a", epoch, 10)
	seedUser(t, users, "b", epoch.Add(time.Minute), 5)
	service := app.NewLeaderboardService(users, 50, time.Hour)
	ctx := context.Background()

	lb, _ := service.GetLeaderboard(ctx, "")
	if lb.Entries[0].UserID != "a" {
		t.Fatalf("expected a first, got %+v", lb.Entries)
	}

	agg, _, _ := users.MergeCompletion(ctx, "b", "b-extra", 100)
	lb, _ = service.GetLeaderboard(ctx, "")
	if lb.Entries[0].UserID != "a" {
		t.Fatalf("expected cached ordering before invalidation")
	}

	service.SessionCompleted(ctx, agg)
	lb, _ = service.GetLeaderboard(ctx, "")
	if lb.Entries[0].UserID != "b" {
		t.Fatalf("expected b first after invalidation, got %+v", lb.Entries)
	}
}

// pausingUsers blocks the first List after it has read the store, until release is closed.
type pausingUsers struct {
	*memory.UserStore
	listed  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingUsers) List(ctx context.Context) ([]domain.UserAggregate, error) {
	aggs, err := p.UserStore.List(ctx)
	paused := false
	p.once.Do(func() { paused = true })
	if paused {
		close(p.listed)
		<-p.release
	}
	return aggs, err
}

func TestLeaderboardRebuildRacingCompletionIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	seedUser(t, store, "a", epoch, 10)
	seedUser(t, store, "b", epoch.Add(time.Minute), 5)
	users := &pausingUsers{UserStore: store, listed: make(chan struct{}), release: make(chan struct{})}
	service := app.NewLeaderboardService(users, 50, time.Hour)

	done := make(chan domain.Leaderboard)
	go func() {
		lb, _ := service.GetLeaderboard(ctx, "")
		done <- lb
	}()

	// The rebuild has read the old totals; a completion lands before it finishes.
	<-users.listed
	agg, _, err := store.MergeCompletion(ctx, "b", "b-extra", 100)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	service.SessionCompleted(ctx, agg)
	close(users.release)

	if stale := <-done; stale.Entries[0].UserID != "a" {
		t.Fatalf("expected the in-flight rebuild to see the old order, got %+v", stale.Entries)
	}

	lb, err := service.GetLeaderboard(ctx, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Entries[0].UserID != "b" {
		t.Fatalf("stale ranking was cached after invalidation: %+v", lb.Entries)
	}
}

func TestLeaderboardSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserStore()
	leaderboard := app.NewLeaderboardService(users, 50, time.Minute)
	service := app.NewQuizService(
		memory.NewSessionStore(),
		memory.NewQuestionCatalog(testQuestions(1)),
		users,
		app.WithCompletionListener(leaderboard),
	)

	ch, cancel, err := leaderboard.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial.Entries)
	}

	view, err := service.StartSession(ctx, "u1", "Alice", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	q := view.QuestionIDs[0]
	if _, err := service.SubmitAnswer(ctx, view.ID, domain.AnswerSubmission{QuestionID: q, UserAnswer: correctAnswerFor(q)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case update := <-ch:
		if len(update.Entries) != 1 || update.Entries[0].UserID != "u1" || update.Entries[0].QuizzesCompleted != 1 {
			t.Fatalf("unexpected update %+v", update.Entries)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected leaderboard update")
	}
}

func TestProfileIncludesRankAndAverage(t *testing.T) {
	users := memory.NewUserStore()
	seedUser(t, users, "a", epoch, 100, 50)
	seedUser(t, users, "b", epoch, 200)
	seedUser(t, users, "c", epoch)
	service := app.NewLeaderboardService(users, 50, 0)

	profile, err := service.GetProfile(context.Background(), "a")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Rank != 2 || profile.AverageScore != 75 || profile.BestScore != 100 || profile.QuizzesCompleted != 2 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	profile, _ = service.GetProfile(context.Background(), "c")
	if profile.Rank != 3 || profile.AverageScore != 0 {
		t.Fatalf("unexpected profile for new user %+v", profile)
	}

	if _, err := service.GetProfile(context.Background(), "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}
