// Package interceptors holds the HTTP middleware chain: correlation, client metadata, recovery,
// request logging, metrics, admission, authentication and role authorization.
package interceptors

import "context"

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	clientKey    = contextKey{"client"}
	requestIDKey = contextKey{"request_id"}
)

// Principal is the authenticated operator behind a request.
type Principal struct {
	OwnerID string
	Email   string
	Role    string
}

// Client is what the transport knows about the caller.
type Client struct {
	IP        string
	UserAgent string
}

// WithPrincipal returns a context carrying p. Set by Authenticate.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal from context and true if set; otherwise zero, false.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithClient returns a context carrying c. Set by ClientMetadata.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// GetClient returns the client metadata from context, or zero when unset.
func GetClient(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey).(Client)
	return c
}

// WithRequestID returns a context carrying the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the correlation id from context, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
