package auth

import (
	"context"
	"net/http"
)

// SessionCookie is the name of the HttpOnly cookie carrying the session JWT.
const SessionCookie = "token"

// contextKey is an unexported type for context keys in this package, so
// no other package can read or shadow the values stored under them.
type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext returns the authenticated user's id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a context carrying the authenticated user's id.
// Exported for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// RequireAuth enforces authentication on protected routes: it reads the
// session cookie, validates the JWT, and stores the userID in the request
// context. Missing or invalid tokens end the request with 401.
func (s *TokenService) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessionUserID(r)
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// OptionalAuth populates the userID in the context when a valid session
// cookie is present, and passes the request through untouched otherwise.
//
// The provider callback routes need this rather than RequireAuth: the
// SAME route serves both "sign in with github" (no session) and "link
// github to my account" (active session) — the linking engine branches on
// whether a current user exists.
func (s *TokenService) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := s.sessionUserID(r); ok {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *TokenService) sessionUserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	userID, err := s.Validate(cookie.Value)
	if err != nil {
		return "", false
	}
	return userID, true
}
