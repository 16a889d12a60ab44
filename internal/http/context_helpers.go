package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/waypoint/internal/domain/auth"
)

const sessionCookieName = "session_id"

// sessionKey is an unexported context key type to avoid collisions across packages.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetUserSessionFromContext returns the user session from context and a boolean indicating presence.
func GetUserSessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// IsGuestUser reports whether the current request context is unauthenticated or a guest session.
func IsGuestUser(ctx context.Context) bool {
	s, ok := GetUserSessionFromContext(ctx)
	if !ok {
		return true
	}
	return s.IsGuest()
}

// sessionOrUnauthorized returns the request's session, writing a 401 when
// handlers are reached without RequireAuth.
func sessionOrUnauthorized(w http.ResponseWriter, r *http.Request) (*domainauth.Session, bool) {
	s, ok := GetUserSessionFromContext(r.Context())
	if !ok || s.UserID == "" {
		writeUnauthenticated(w)
		return nil, false
	}
	return s, true
}
