// Package httputil writes the JSON envelopes shared by handlers and interceptors.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorBody is the error envelope: {"error":{"code","message"}}. It never carries correlation data,
// so two failures with the same code and message are byte-identical.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner error object. RetryAfter is set only for 429 and 503.
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteRetryable writes the error envelope with a Retry-After header and matching retryAfter field.
func WriteRetryable(w http.ResponseWriter, status int, code, message string, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message, RetryAfter: retryAfterSeconds}})
}

// Common errors.
const (
	CodeInternal     = "internal"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "unavailable"
	CodeValidation   = "validation_failed"
	CodeNotFound     = "not_found"
)

// WriteInternal writes the generic 500 body.
func WriteInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

// WriteUnauthorized writes the generic 401 body for token failures.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}
