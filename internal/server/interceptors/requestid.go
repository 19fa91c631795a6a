package interceptors

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	headerTimestamp = "X-Timestamp"
	maxRequestIDLen = 128
)

// RequestID reuses a well-formed inbound X-Request-Id or mints a UUID, and stamps every response
// with X-Request-Id and X-Timestamp (RFC 3339, UTC).
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		w.Header().Set(headerTimestamp, time.Now().UTC().Format(time.RFC3339Nano))
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// validRequestID accepts 1-128 characters of [A-Za-z0-9._-].
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
