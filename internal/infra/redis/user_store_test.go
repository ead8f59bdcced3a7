package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"
)

func TestUserStoreEnsureAndMerge(t *testing.T) {
	_, client := startMiniredis(t)
	store := NewUserStore(client)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	agg, err := store.Ensure(ctx, "u1", "Alice", created)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if agg.DisplayName != "Alice" || !agg.CreatedAt.Equal(created) || agg.TotalScore != 0 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	agg, _ = store.Ensure(ctx, "u1", "Renamed", created.Add(time.Hour))
	if agg.DisplayName != "Alice" || !agg.CreatedAt.Equal(created) {
		t.Fatalf("ensure overwrote aggregate %+v", agg)
	}

	agg, applied, err := store.MergeCompletion(ctx, "u1", "s1", 87.25)
	if err != nil || !applied {
		t.Fatalf("merge: applied=%v err=%v", applied, err)
	}
	if math.Abs(agg.TotalScore-87.25) > 1e-9 || agg.QuizzesCompleted != 1 || math.Abs(agg.BestScore-87.25) > 1e-9 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	agg, applied, err = store.MergeCompletion(ctx, "u1", "s1", 87.25)
	if err != nil || applied || agg.QuizzesCompleted != 1 {
		t.Fatalf("expected duplicate merge to be a no-op, applied=%v err=%v agg=%+v", applied, err, agg)
	}

	agg, _, _ = store.MergeCompletion(ctx, "u1", "s2", 10)
	if math.Abs(agg.TotalScore-97.25) > 1e-9 || agg.QuizzesCompleted != 2 || math.Abs(agg.BestScore-87.25) > 1e-9 {
		t.Fatalf("unexpected aggregate after second merge %+v", agg)
	}

	if _, _, err := store.MergeCompletion(ctx, "ghost", "s9", 1); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestUserStoreConcurrentMerges(t *testing.T) {
	_, client := startMiniredis(t)
	store := NewUserStore(client)
	ctx := context.Background()
	_, _ = store.Ensure(ctx, "u1", "Alice", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := store.MergeCompletion(ctx, "u1", fmt.Sprintf("s%d", i), 5); err != nil {
				t.Errorf("merge: %v", err)
			}
		}(i)
	}
	wg.Wait()

	agg, _ := store.Get(ctx, "u1")
	if agg.QuizzesCompleted != 20 || math.Abs(agg.TotalScore-100) > 1e-9 {
		t.Fatalf("lost updates: %+v", agg)
	}
}

func TestUserStoreList(t *testing.T) {
	_, client := startMiniredis(t)
	store := NewUserStore(client)
	ctx := context.Background()

	list, err := store.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %d err=%v", len(list), err)
	}
	for _, id := range []string{"a", "b", "c"} {
		_, _ = store.Ensure(ctx, id, "", time.Now())
	}
	list, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 users, got %d", len(list))
	}
	for _, agg := range list {
		if agg.DisplayName != agg.UserID {
			t.Fatalf("expected display name to default to id, got %+v", agg)
		}
	}
}
