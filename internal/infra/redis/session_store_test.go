package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreAppendAndComplete(t *testing.T) {
	mr, client := startMiniredis(t)
	store := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	session := domain.QuizSession{ID: "s1", UserID: "u1", QuestionIDs: []string{"q1", "q2"}, Status: domain.SessionOpen, CreatedAt: time.Now().UTC()}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if err := store.Create(ctx, session); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected duplicate create to fail, got %v", err)
	}

	updated, err := store.AppendAnswer(ctx, "s1", 0, domain.Answer{QuestionID: "q1", Grade: 1, Score: 42.5})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if updated.Totals.TotalScore != 42.5 || updated.Totals.TotalCorrect != 1 {
		t.Fatalf("unexpected totals %+v", updated.Totals)
	}
	if _, err := store.AppendAnswer(ctx, "s1", 0, domain.Answer{QuestionID: "q2"}); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected stale append to fail, got %v", err)
	}
	if _, err := store.AppendAnswer(ctx, "s1", 1, domain.Answer{QuestionID: "q2"}); err != nil {
		t.Fatalf("append final: %v", err)
	}
	if _, err := store.AppendAnswer(ctx, "s1", 2, domain.Answer{QuestionID: "q3"}); !errors.Is(err, domain.ErrSessionAlreadyComplete) {
		t.Fatalf("expected complete session to reject appends, got %v", err)
	}

	if err := store.MarkPropagated(ctx, "s1"); err != nil {
		t.Fatalf("mark propagated: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.SessionComplete || !got.Propagated || len(got.Answers) != 2 || got.Totals.TotalWrong != 1 {
		t.Fatalf("unexpected stored session %+v", got)
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl <= 0 {
		t.Fatalf("expected ttl to survive updates, got %v", ttl)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreConcurrentAppendsSingleWinner(t *testing.T) {
	_, client := startMiniredis(t)
	store := NewSessionStore(client, 0)
	ctx := context.Background()
	_ = store.Create(ctx, domain.QuizSession{ID: "s1", QuestionIDs: []string{"q1", "q2"}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AppendAnswer(ctx, "s1", 0, domain.Answer{QuestionID: "q1", Grade: 1, Score: 1}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
	got, _ := store.Get(ctx, "s1")
	if len(got.Answers) != 1 {
		t.Fatalf("expected one answer, got %d", len(got.Answers))
	}
}

func TestSessionStoreUnavailable(t *testing.T) {
	mr, client := startMiniredis(t)
	store := NewSessionStore(client, 0)
	mr.Close()

	_, err := store.Get(context.Background(), "s1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func startMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
