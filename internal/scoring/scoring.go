// Package scoring grades answers and turns a grade plus response time into points.
package scoring

import (
	"math"

	"trivia-quiz-service/internal/domain"
)

const (
	// MaxScore is awarded for a correct answer given instantly.
	MaxScore = 100.0
	// DecayRate is the per-second exponential decay applied to a correct answer.
	DecayRate = 0.2
)

// Score returns MaxScore * grade * e^(-DecayRate * elapsedSeconds).
// The result is always in [0, MaxScore] and is zero for grade 0. A correct answer stays
// strictly positive: once the decay underflows float64 (past roughly 3700s) the score is
// held at math.SmallestNonzeroFloat64.
func Score(grade int, elapsedSeconds float64) (float64, error) {
	if grade != 0 && grade != 1 {
		return 0, domain.ErrInvalidGrade
	}
	if err := ValidateElapsed(elapsedSeconds); err != nil {
		return 0, err
	}
	if grade == 0 {
		return 0, nil
	}
	score := MaxScore * math.Exp(-DecayRate*elapsedSeconds)
	if score <= 0 {
		score = math.SmallestNonzeroFloat64
	}
	return score, nil
}

// Grade is 1 when userAnswer equals correctAnswer byte for byte, otherwise 0.
// There is no trimming or case folding; an empty answer never matches.
func Grade(userAnswer, correctAnswer string) int {
	if userAnswer != "" && userAnswer == correctAnswer {
		return 1
	}
	return 0
}

// ValidateElapsed rejects negative, NaN and infinite response times.
func ValidateElapsed(elapsedSeconds float64) error {
	if math.IsNaN(elapsedSeconds) || math.IsInf(elapsedSeconds, 0) || elapsedSeconds < 0 {
		return domain.ErrInvalidElapsedTime
	}
	return nil
}
