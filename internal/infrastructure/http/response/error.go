package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rezkam/flotilla/internal/domain"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information. Code is a stable string that
// is part of the external contract.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// BadRequest sends a 400 Bad Request error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, "INVALID_REQUEST", message, http.StatusBadRequest)
}

// NotFound sends a 404 Not Found error.
func NotFound(w http.ResponseWriter, resource string) {
	Error(w, "NOT_FOUND", resource+" not found", http.StatusNotFound)
}

// Unauthorized sends a 401 Unauthorized error.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, "UNAUTHORIZED", message, http.StatusUnauthorized)
}

// Conflict sends a 409 Conflict error with the given code.
func Conflict(w http.ResponseWriter, code, message string) {
	Error(w, code, message, http.StatusConflict)
}

// Unavailable sends a 503 with a retryable error code.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, "UNAVAILABLE", message, http.StatusServiceUnavailable)
}

// InternalError sends a 500 Internal Server Error.
// Logs the error server-side but returns a generic message to the
// client to prevent information disclosure.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "internal server error", "error", err)
	}
	Error(w, "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError)
}

// Error sends a generic error response.
func Error(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// FromDomainError maps domain errors to HTTP responses.
func FromDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	// Bad request (400)
	case errors.Is(err, domain.ErrInvalidArgument):
		BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrUnknownOperation):
		Error(w, "UNKNOWN_OPERATION", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrJobNotReleasable):
		BadRequest(w, err.Error())

	// Not found (404)
	case errors.Is(err, domain.ErrJobNotFound):
		NotFound(w, "job")
	case errors.Is(err, domain.ErrBotNotFound):
		NotFound(w, "bot")

	// Auth (401)
	case errors.Is(err, domain.ErrUnauthorized):
		Unauthorized(w, "invalid or missing admin token")

	// Conflict (409)
	case errors.Is(err, domain.ErrBotBusy):
		Conflict(w, "BUSY_BOT", err.Error())
	case errors.Is(err, domain.ErrNotClaimOwner):
		Conflict(w, "NOT_CLAIM_OWNER", err.Error())
	case errors.Is(err, domain.ErrAlreadyTerminal):
		Conflict(w, "ALREADY_TERMINAL", err.Error())
	case errors.Is(err, domain.ErrBotCurrentJobTaken):
		Conflict(w, "unique_bot_current_job", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		Conflict(w, "CONFLICT", err.Error())

	// Retryable unavailability (503)
	case errors.Is(err, domain.ErrUnavailable):
		Unavailable(w, "store temporarily unavailable, retry with backoff")

	// Invariant violations (500) indicate a bug; log with full context.
	case errors.Is(err, domain.ErrStateViolation):
		slog.ErrorContext(r.Context(), "state consistency violation surfaced", "error", err)
		Error(w, "job_state_consistency", "internal state violation detected", http.StatusInternalServerError)

	default:
		InternalError(w, r, err)
	}
}
