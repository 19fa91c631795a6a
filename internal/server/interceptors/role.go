package interceptors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsgate/internal/platform/httputil"
	"opsgate/internal/policy/engine"
)

// RequireRole asks the authorization policy whether the principal may use the route.
// Must run after Authenticate. A policy that cannot be evaluated denies with 503.
func RequireRole(policy engine.Evaluator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := GetPrincipal(ctx)
			if !ok {
				httputil.WriteUnauthorized(w)
				return
			}
			allowed, err := policy.Allow(ctx,
				engine.Subject{ID: p.OwnerID, Role: p.Role},
				engine.Request{Method: r.Method, Route: routePattern(r)})
			if err != nil {
				logger.ErrorContext(ctx, "authorization policy failed", "error", err, "request_id", GetRequestID(ctx))
				httputil.WriteRetryable(w, http.StatusServiceUnavailable, httputil.CodeUnavailable, "service unavailable", 5)
				return
			}
			if !allowed {
				logger.WarnContext(ctx, "role denied", "operator_id", p.OwnerID, "role", p.Role, "request_id", GetRequestID(ctx))
				httputil.WriteError(w, http.StatusForbidden, httputil.CodeForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern returns the matched chi pattern, or the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
