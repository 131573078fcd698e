package bastion

import "context"

type contextKey int

const (
	ctxKeyPrincipal contextKey = iota
	ctxKeyRequestID
)

// WithPrincipal returns a context carrying the verified caller. The
// authentication middleware sets it after verifying a bearer token.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// WithRequestID returns a context carrying the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestIDFrom returns the request correlation id, if any.
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func principalFromValue(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	if !ok || !p.Valid() {
		return Principal{}, false
	}
	return p, true
}
