package interceptors

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"opsgate/internal/admission"
	"opsgate/internal/platform/httputil"
	"opsgate/internal/platform/metrics"
)

// Admitter is the part of admission.Controller the interceptor needs.
type Admitter interface {
	Admit(ctx context.Context, clientKey string, class admission.Class) (admission.Decision, error)
}

// Admission counts the request against class for the client resolved by ClientMetadata.
// Denials get 429 with Retry-After. When the counter store fails the request is served and the error logged.
// Allowed requests past the slow-down threshold are delayed; a client that disconnects while waiting is dropped.
func Admission(adm Admitter, class admission.Class, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := GetClient(ctx).IP
			if ip == "" {
				ip = admission.ClientKey(r, nil)
			}
			d, err := adm.Admit(ctx, ip, class)
			if err != nil {
				m.ObserveAdmission(string(class), "error")
				logger.ErrorContext(ctx, "admission check failed, serving request",
					"error", err, "class", string(class), "request_id", GetRequestID(ctx))
				next.ServeHTTP(w, r)
				return
			}
			addRateLimitHeaders(w, d)
			if !d.Allowed {
				m.ObserveAdmission(string(class), "denied")
				logger.WarnContext(ctx, "request rate limited",
					"class", string(class), "client_ip", ip, "request_id", GetRequestID(ctx))
				httputil.WriteRetryable(w, http.StatusTooManyRequests, httputil.CodeRateLimited,
					"too many requests", d.RetryAfterSeconds())
				return
			}
			m.ObserveAdmission(string(class), "allowed")
			if d.Delay > 0 && !wait(ctx, d.Delay) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, d admission.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// wait sleeps for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
