// Package middleware provides HTTP middleware for request auditing,
// identity propagation, and traffic control.
package middleware

import (
	"encoding/json"
	"net/http"
)

// APIError represents a JSON error response for the API.
type APIError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	// RetryAfter is the suggested wait in whole seconds, present only
	// on rate-limit denials.
	RetryAfter int64 `json:"retryAfter,omitempty"`
}

// WriteAPIError writes a JSON error response.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteAPIErrorRetry(w, statusCode, code, message, 0)
}

// WriteAPIErrorRetry writes a JSON error response carrying a retry hint.
func WriteAPIErrorRetry(w http.ResponseWriter, statusCode int, code, message string, retryAfter int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	apiErr := APIError{RetryAfter: retryAfter}
	apiErr.Error.Code = code
	apiErr.Error.Message = message

	_ = json.NewEncoder(w).Encode(apiErr)
}
