package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
)

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps engine errors to HTTP statuses. Anything unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSessionOwnership):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizCompleted),
		errors.Is(err, domain.ErrAlreadyRecorded),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTimeSpentDecreased):
		return http.StatusConflict
	case domain.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorPayload{Message: msg})
}
