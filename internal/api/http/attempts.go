package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-training/internal/auth/middleware"
	"github.com/mind-engage/mindengage-training/internal/quiz"
	"github.com/mind-engage/mindengage-training/internal/rbac"
)

// AttemptService is what the attempt handlers need from quiz.Service.
type AttemptService interface {
	StartAttempt(ctx context.Context, quizID, userID string) (quiz.StartResult, error)
	StartForLesson(ctx context.Context, lessonID, userID string) (quiz.StartResult, error)
	GetAttemptView(ctx context.Context, attemptID, userID string) (quiz.AttemptView, error)
	SubmitAttempt(ctx context.Context, attemptID, userID string, answers []quiz.SubmittedAnswer) (quiz.AttemptResult, error)
	GetResult(ctx context.Context, attemptID, userID string) (quiz.AttemptResult, error)
	ListAttempts(ctx context.Context, quizID, userID string) ([]quiz.Attempt, error)
}

// MountAttempts registers the attempt routes. The router must already run
// the JWT middleware so subject and role are in the request context.
func MountAttempts(r chi.Router, svc AttemptService) {
	r.With(rbac.Require(rbac.PermAttemptCreate)).
		Post("/quizzes/{quizID}/attempts", StartAttemptHandler(svc))
	r.With(rbac.Require(rbac.PermAttemptCreate)).
		Post("/lessons/{lessonID}/attempts", StartLessonAttemptHandler(svc))
	r.With(rbac.Require(rbac.PermAttemptViewOwn)).
		Get("/attempts/{attemptID}", GetAttemptHandler(svc))
	r.With(rbac.Require(rbac.PermAttemptSubmit)).
		Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(svc))
	r.With(rbac.Require(rbac.PermAttemptViewOwn)).
		Get("/attempts/{attemptID}/result", GetResultHandler(svc))
	r.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
		Get("/attempts", ListAttemptsHandler(svc))
}

// POST /quizzes/{quizID}/attempts
func StartAttemptHandler(svc AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.StartAttempt(r.Context(), chi.URLParam(r, "quizID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, res)
	}
}

// POST /lessons/{lessonID}/attempts
func StartLessonAttemptHandler(svc AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.StartForLesson(r.Context(), chi.URLParam(r, "lessonID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, res)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetAttemptView(r.Context(), chi.URLParam(r, "attemptID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
	}
}

// POST /attempts/{attemptID}/submit  { "answers": [ { "question_id": "...", "choice_ids": [...] } ] }
func SubmitAttemptHandler(svc AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers []quiz.SubmittedAnswer `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := svc.SubmitAttempt(r.Context(), chi.URLParam(r, "attemptID"), auth.SubjectFromContext(r.Context()), req.Answers)
		if errors.Is(err, quiz.ErrAttemptTimedOut) {
			// late submission: the attempt is finalized, hand back its result
			respondJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "result": res})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}/result
func GetResultHandler(svc AttemptService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetResult(r.Context(), chi.URLParam(r, "attemptID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// GET /attempts?quiz_id=...&user_id=...
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(svc AttemptService) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := strings.TrimSpace(r.URL.Query().Get("quiz_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if !checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermAttemptViewAll) {
			userID = auth.SubjectFromContext(r.Context())
		}
		list, err := svc.ListAttempts(r.Context(), quizID, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []quiz.Attempt{}
		}
		respondJSON(w, http.StatusOK, list)
	}
}
