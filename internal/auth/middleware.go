package auth

import (
	"context"
	"net/http"

	"github.com/sakif/maxed-cv/internal/session"
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It relies on session.Manager.Load having run earlier in the chain: Load
// reads the cookie, rejects absolutely-expired sessions, and attaches the
// live session to the context. If there is none, RequireAuth returns
// 401 Unauthorized and stops the request chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler. The new handler "wraps" the original:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	        // ... do stuff after the handler ...
//	    })
//	}
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"you must be logged in"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request is anonymous (no live session was loaded).
//
// Usage in handlers:
//
//	userID, ok := auth.UserIDFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func UserIDFromContext(ctx context.Context) (string, bool) {
	sess, ok := session.FromContext(ctx)
	if !ok || sess.UserID == "" {
		return "", false
	}
	return sess.UserID, true
}
