package auth

import (
	"context"
	"net/http"
	"time"
)

// SessionCookie is the cookie holding the signed session token.
const SessionCookie = "everypoll_session"

// StateCookie holds the OAuth state nonce for the duration of the round trip.
const StateCookie = "everypoll_oauth_nonce"

// contextKey is an unexported type for context keys in this package.
// A package-private key type means only this package can read or write the
// user ID in a request context — no collisions with other packages.
type contextKey string

const userIDKey contextKey = "userID"

// Identity resolves a session cookie value to a user ID. Implemented by
// service.AuthService; the middleware stays ignorant of how resolution works
// (token verification, session row lookup, expiry).
type Identity interface {
	UserIDForToken(ctx context.Context, tokenStr string) (string, error)
}

// RequireUser enforces a resolvable session user on protected routes.
//
// It reads the session cookie, resolves it through the Identity, and stores
// the user ID in the request context. Missing or unresolvable sessions get a
// 401 — this middleware never creates users; only GET /api/auth/me does that.
func RequireUser(identity Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveRequest(r, identity)
			if err != nil || userID == "" {
				http.Error(w, `{"error":"unauthorized","message":"a session is required"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalUser resolves the user if a valid session cookie is present but
// never blocks the request. Handlers detect anonymity via UserIDFromContext.
func OptionalUser(identity Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := resolveRequest(r, identity); err == nil && userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying the resolved user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the resolved user's ID from the request context.
// Returns ("", false) if no session user was resolved.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func resolveRequest(r *http.Request, identity Identity) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		// http.ErrNoCookie — not an error, just no session.
		return "", err
	}
	return identity.UserIDForToken(r.Context(), cookie.Value)
}

// SetSessionCookie writes the signed session token as an HttpOnly cookie.
// HttpOnly keeps it away from page JavaScript; SameSite=Lax sends it on
// top-level navigations (the OAuth callback redirect) but not cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // Uncomment in production (requires HTTPS)
	})
}

// ClearSessionCookie instructs the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
