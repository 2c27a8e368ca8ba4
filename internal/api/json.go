package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/scimark/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string      `json:"error" validate:"required"`
	Code  apperr.Code `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err onto a status code through its apperr class.
// Unclassified errors are logged and reported as internal.
func writeError(w http.ResponseWriter, op string, err error) {
	code := apperr.Classify(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Code: code})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidBlock:
		return http.StatusBadRequest
	case apperr.CodeMalformedMath, apperr.CodeInvalidReference, apperr.CodeDelimiter, apperr.CodeBibliography:
		return http.StatusUnprocessableEntity
	case apperr.CodeToolNotFound, apperr.CodeCancel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
