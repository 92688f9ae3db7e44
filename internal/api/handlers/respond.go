package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dom/neighbor-group/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	return dec.Decode(v)
}

// httpError maps the domain error taxonomy onto a status, a stable code
// and a message that is safe to show. Unknown errors are 500s.
func httpError(err error) (int, string, string) {
	var validation *domain.ValidationError
	var limit *domain.RateLimitError

	switch {
	case errors.As(err, &limit):
		return http.StatusTooManyRequests, "RATE_LIMITED", limit.Error()
	case errors.As(err, &validation):
		return http.StatusBadRequest, "VALIDATION", validation.Message
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, "DUPLICATE_EMAIL", "Sorry, that email address is already registered."
	case errors.Is(err, domain.ErrSlugTaken):
		return http.StatusConflict, "SLUG_TAKEN", "Sorry, that URL is already taken."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Sorry, your login was incorrect."
	case errors.Is(err, domain.ErrInvalidReset):
		return http.StatusBadRequest, "INVALID_RESET", "Sorry, your password reset code was invalid."
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Please log in first."
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "NOT_A_MEMBER", "You are not a member of this group."
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found."
	default:
		return http.StatusInternalServerError, "INTERNAL", "Error: something unexpected happened."
	}
}

func respondError(w http.ResponseWriter, err error) int {
	status, code, message := httpError(err)
	writeError(w, status, code, message)
	return status
}
