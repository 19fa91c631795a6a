package interceptors

import (
	"log/slog"
	"net/http"
	"strings"

	"opsgate/internal/platform/httputil"
	"opsgate/internal/security"
)

const bearerPrefix = "bearer "

// AccessVerifier is the part of security.TokenIssuer the auth interceptor needs.
type AccessVerifier interface {
	VerifyAccess(token string) (*security.AccessClaims, error)
}

// Authenticate validates the Bearer access token and stores the principal in context.
// Missing, malformed, expired and refresh-class tokens all get the same 401 body.
func Authenticate(tokens AccessVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" {
				httputil.WriteUnauthorized(w)
				return
			}
			claims, err := tokens.VerifyAccess(token)
			if err != nil {
				logger.InfoContext(r.Context(), "access token rejected",
					"error", err, "request_id", GetRequestID(r.Context()))
				httputil.WriteUnauthorized(w)
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{
				OwnerID: claims.OwnerID(),
				Email:   claims.Email,
				Role:    claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
