package interceptors

import (
	"net/http"
	"net/netip"

	"opsgate/internal/admission"
)

// ClientMetadata resolves the client address (honoring forwarding headers only from trusted proxies)
// and the User-Agent, and stores them in context.
func ClientMetadata(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClient(r.Context(), Client{
				IP:        admission.ClientKey(r, trusted),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
