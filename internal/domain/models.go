package domain

import "time"

const (
	// DefaultQuestionCount is the number of questions in a session when the caller does not ask for one.
	DefaultQuestionCount = 10
	// MaxQuestionCount caps a single session.
	MaxQuestionCount = 50
)

// Question is a catalog record. It is immutable once created.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Category         string   `json:"category" yaml:"category"`
	Type             string   `json:"type" yaml:"type"`
	Difficulty       string   `json:"difficulty" yaml:"difficulty"`
	Prompt           string   `json:"question" yaml:"question"`
	CorrectAnswer    string   `json:"correct_answer" yaml:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers" yaml:"incorrect_answers"`
}

// PublicQuestion is what the untrusted side sees: the correct answer is mixed into Options
// and nothing marks which one it is.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Prompt     string   `json:"question"`
	Options    []string `json:"options"`
}

// Public strips answer metadata and shuffles all options together with shuffle
// (rand.Shuffle in production).
func (q Question) Public(shuffle func(n int, swap func(i, j int))) PublicQuestion {
	options := make([]string, 0, len(q.IncorrectAnswers)+1)
	options = append(options, q.IncorrectAnswers...)
	options = append(options, q.CorrectAnswer)
	shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return PublicQuestion{
		ID:         q.ID,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Prompt:     q.Prompt,
		Options:    options,
	}
}

// SessionStatus is the state of a quiz session. Complete is terminal.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
)

// Answer is one graded submission. Immutable once appended.
type Answer struct {
	QuestionID     string    `json:"questionId"`
	UserAnswer     string    `json:"userAnswer"`
	Grade          int       `json:"grade"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Score          float64   `json:"score"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// AnswerSubmission is a client's answer to one session question.
type AnswerSubmission struct {
	QuestionID     string  `json:"questionId"`
	UserAnswer     string  `json:"userAnswer"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// Totals are the running totals of a session.
type Totals struct {
	TotalScore   float64 `json:"totalScore"`
	TotalCorrect int     `json:"totalCorrect"`
	TotalWrong   int     `json:"totalWrong"`
}

// Add returns the totals after recording a.
func (t Totals) Add(a Answer) Totals {
	t.TotalScore += a.Score
	if a.Grade == 1 {
		t.TotalCorrect++
	} else {
		t.TotalWrong++
	}
	return t
}

// QuizSession is one user's attempt at a fixed batch of questions.
type QuizSession struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	QuestionIDs []string      `json:"questionIds"`
	Answers     []Answer      `json:"answers"`
	Totals      Totals        `json:"totals"`
	Status      SessionStatus `json:"status"`
	Propagated  bool          `json:"propagated"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// IsComplete reports whether every question has an answer.
func (s QuizSession) IsComplete() bool {
	return len(s.Answers) == len(s.QuestionIDs)
}

// HasQuestion reports whether questionID belongs to the session's question set.
func (s QuizSession) HasQuestion(questionID string) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Answered reports whether questionID already has a recorded answer.
func (s QuizSession) Answered(questionID string) bool {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// WithAnswer returns a copy of the session with a appended, totals updated and the status
// recomputed. The receiver is not modified.
func (s QuizSession) WithAnswer(a Answer) QuizSession {
	next := s
	next.Answers = make([]Answer, len(s.Answers), len(s.Answers)+1)
	copy(next.Answers, s.Answers)
	next.Answers = append(next.Answers, a)
	next.Totals = s.Totals.Add(a)
	next.Status = SessionOpen
	if next.IsComplete() {
		next.Status = SessionComplete
	}
	return next
}

// SessionView is a session with its questions resolved for presentation.
type SessionView struct {
	QuizSession
	Questions []PublicQuestion `json:"questions"`
}

// AnswerResult is the outcome of a single submission.
type AnswerResult struct {
	QuestionID string  `json:"questionId"`
	Grade      int     `json:"grade"`
	Score      float64 `json:"score"`
	Totals
	Completed bool `json:"completed"`
}

// UserAggregate holds a user's cross-session statistics. Values never decrease.
type UserAggregate struct {
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	TotalScore       float64   `json:"totalScore"`
	QuizzesCompleted int       `json:"quizzesCompleted"`
	BestScore        float64   `json:"bestScore"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Merge folds one completed session total into the aggregate.
func (u UserAggregate) Merge(sessionTotal float64) UserAggregate {
	u.TotalScore += sessionTotal
	u.QuizzesCompleted++
	if sessionTotal > u.BestScore {
		u.BestScore = sessionTotal
	}
	return u
}

// LeaderboardEntry is a ranked projection of a UserAggregate.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	TotalScore       float64   `json:"totalScore"`
	QuizzesCompleted int       `json:"quizzesCompleted"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UserRank is a single user's position in the ranking.
type UserRank struct {
	Rank       int     `json:"rank"`
	TotalScore float64 `json:"totalScore"`
}

// Leaderboard is an ordered snapshot of the top users.
type Leaderboard struct {
	Entries    []LeaderboardEntry `json:"leaderboard"`
	UserRank   *UserRank          `json:"userRank,omitempty"`
	TotalUsers int                `json:"totalUsers"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Profile is a user's aggregate together with their current rank.
type Profile struct {
	UserAggregate
	Rank         int     `json:"rank"`
	AverageScore float64 `json:"averageScore"`
}
