package scoring

import (
	"errors"
	"math"
	"testing"

	"trivia-quiz-service/internal/domain"
)

func TestScoreInstantCorrectAnswerIsMax(t *testing.T) {
	got, err := Score(1, 0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if math.Abs(got-100) > 1e-9 {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestScoreDecaysAfterTenSeconds(t *testing.T) {
	got, err := Score(1, 10)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	want := 100 * math.Exp(-2)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if math.Abs(got-13.534) > 1e-3 {
		t.Fatalf("expected about 13.534, got %v", got)
	}
}

func TestScoreWrongAnswerIsZero(t *testing.T) {
	for _, elapsed := range []float64{0, 0.5, 3, 30, 1e6} {
		got, err := Score(0, elapsed)
		if err != nil {
			t.Fatalf("score(0, %v): %v", elapsed, err)
		}
		if got != 0 {
			t.Fatalf("score(0, %v) = %v, want 0", elapsed, got)
		}
	}
}

func TestScoreStrictlyDecreasing(t *testing.T) {
	prev, _ := Score(1, 0)
	for elapsed := 0.25; elapsed <= 60; elapsed += 0.25 {
		got, err := Score(1, elapsed)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got <= 0 || got > 100 {
			t.Fatalf("score(1, %v) = %v out of (0, 100]", elapsed, got)
		}
		if got >= prev {
			t.Fatalf("score(1, %v) = %v not below previous %v", elapsed, got, prev)
		}
		prev = got
	}
}

func TestScoreCorrectAnswerStaysPositiveForLongWaits(t *testing.T) {
	for _, elapsed := range []float64{3600, 3800, 5000, 1e6, math.MaxFloat64} {
		got, err := Score(1, elapsed)
		if err != nil {
			t.Fatalf("score(1, %v): %v", elapsed, err)
		}
		if got <= 0 {
			t.Fatalf("score(1, %v) = %v, want > 0", elapsed, got)
		}
	}
	if got, _ := Score(0, 5000); got != 0 {
		t.Fatalf("score(0, 5000) = %v, want 0", got)
	}
}

func TestScoreRejectsBadInput(t *testing.T) {
	if _, err := Score(1, -0.001); !errors.Is(err, domain.ErrInvalidElapsedTime) {
		t.Fatalf("expected invalid elapsed time, got %v", err)
	}
	if _, err := Score(1, math.NaN()); !errors.Is(err, domain.ErrInvalidElapsedTime) {
		t.Fatalf("expected invalid elapsed time for NaN, got %v", err)
	}
	if _, err := Score(2, 1); !errors.Is(err, domain.ErrInvalidGrade) {
		t.Fatalf("expected invalid grade, got %v", err)
	}
	if _, err := Score(1, -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation class, got %v", err)
	}
}

func TestScoreDeterministic(t *testing.T) {
	a, _ := Score(1, 7.3)
	b, _ := Score(1, 7.3)
	if a != b {
		t.Fatalf("expected identical results, got %v and %v", a, b)
	}
}

func TestGradeExactMatch(t *testing.T) {
	cases := []struct {
		answer, correct string
		want            int
	}{
		{"Paris", "Paris", 1},
		{"paris", "Paris", 0},
		{"Paris ", "Paris", 0},
		{"", "Paris", 0},
		{"", "", 0},
		{"Lyon", "Paris", 0},
	}
	for _, tc := range cases {
		if got := Grade(tc.answer, tc.correct); got != tc.want {
			t.Fatalf("Grade(%q, %q) = %d, want %d", tc.answer, tc.correct, got, tc.want)
		}
	}
}
