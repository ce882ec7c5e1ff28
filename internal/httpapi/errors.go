package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"runnerd/internal/bridge"
	"runnerd/internal/runner"
	"runnerd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

type statusError struct {
	msg  string
	code int
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.code }

// ErrBadRequest builds a 400 error.
func ErrBadRequest(msg string) error { return statusError{msg: msg, code: http.StatusBadRequest} }

// ErrNotFound builds a 404 error.
func ErrNotFound(msg string) error { return statusError{msg: msg, code: http.StatusNotFound} }

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case bridge.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case runner.IsNotLoaded(err):
		return http.StatusConflict
	case runner.IsConcurrentGeneration(err):
		return http.StatusTooManyRequests
	case runner.IsLoadError(err), runner.IsGenerationError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
