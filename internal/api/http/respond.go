package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrQuizInactive),
		errors.Is(err, quiz.ErrLessonNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrAttemptNotOwned):
		return http.StatusForbidden
	case errors.Is(err, quiz.ErrAttemptLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, quiz.ErrAttemptAlreadyInProgress),
		errors.Is(err, quiz.ErrAttemptAlreadyFinalized),
		errors.Is(err, quiz.ErrAttemptNotFinalized):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrInvalidAnswerPayload):
		return http.StatusBadRequest
	case errors.Is(err, quiz.ErrAttemptTimedOut):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}
