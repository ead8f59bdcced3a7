package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// API serves the REST surface over the quiz and leaderboard services.
type API struct {
	quiz        *app.QuizService
	leaderboard *app.LeaderboardService
}

func NewAPI(quiz *app.QuizService, leaderboard *app.LeaderboardService) *API {
	return &API{quiz: quiz, leaderboard: leaderboard}
}

// Routes registers the /api routes on r.
func (a *API) Routes(r chi.Router) {
	r.Post("/sessions", a.handleStartSession)
	r.Get("/sessions/{sessionID}", a.handleGetSession)
	r.Post("/sessions/{sessionID}/answers", a.handleSubmitAnswer)
	r.Get("/leaderboard", a.handleLeaderboard)
	r.Get("/profile", a.handleProfile)
	r.Get("/questions/random", a.handleRandomQuestions)
}

type startSessionRequest struct {
	QuestionCount int `json:"questionCount"`
}

type errorBody struct {
	Error string `json:"error"`
}

// pendingResult is returned when an answer was recorded but folding the completed session
// into the user's totals has to be retried.
type pendingResult struct {
	domain.AnswerResult
	Error string `json:"error"`
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrMissingIdentity)
		return
	}
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	}

	view, err := a.quiz.StartSession(r.Context(), id.UserID, id.DisplayName, req.QuestionCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrMissingIdentity)
		return
	}
	view, err := a.quiz.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if view.UserID != id.UserID {
		writeError(w, domain.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrMissingIdentity)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var sub domain.AnswerSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid answer payload"})
		return
	}
	if err := a.quiz.CheckOwner(r.Context(), sessionID, id.UserID); err != nil {
		writeError(w, err)
		return
	}

	result, err := a.quiz.SubmitAnswer(r.Context(), sessionID, sub)
	if err != nil && result.Completed {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("answer accepted with completion pending")
		writeJSON(w, http.StatusAccepted, pendingResult{AnswerResult: result, Error: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	lb, err := a.leaderboard.GetLeaderboard(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, domain.ErrMissingIdentity)
		return
	}
	profile, err := a.leaderboard.GetProfile(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleRandomQuestions(w http.ResponseWriter, r *http.Request) {
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, domain.ErrInvalidQuestionCount)
			return
		}
		count = n
	}
	questions, err := a.quiz.RandomQuestions(r.Context(), count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// statusFor maps the domain error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unhandled request error")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
