package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CallerIdentity extracts the authenticated identity from the request
// context, if a session with one is present.
func CallerIdentity(ctx context.Context) (Identity, bool) {
	return IdentityFromContext(SessionFromContext(ctx))
}
