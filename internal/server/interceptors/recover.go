package interceptors

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"opsgate/internal/platform/httputil"
)

// Recover turns a panic in a handler into a 500 with the generic body. The stack goes to the log only.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "panic in handler",
					"panic", rec,
					"request_id", GetRequestID(r.Context()),
					"stack", string(debug.Stack()))
				httputil.WriteInternal(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
