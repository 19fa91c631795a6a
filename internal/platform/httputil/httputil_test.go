package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"error":{"code":"invalid_credentials","message":"invalid email or password"}}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestWriteRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRetryable(rec, http.StatusTooManyRequests, CodeRateLimited, "too many requests", 0)
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	want := `{"error":{"code":"rate_limited","message":"too many requests","retryAfter":1}}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q", rec.Body.String())
	}
}
