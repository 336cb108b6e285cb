package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	callerContextKey contextKey = "caller"

	// SessionCookieName is the cookie the auth service sets for browser sessions.
	SessionCookieName = "gv_session"
)

// Identity is the verified caller attached to a request.
type Identity struct {
	UserID        uuid.UUID
	PlatformAdmin bool
}

// AuthMiddleware validates the bearer token (or session cookie) and injects the
// caller identity into the context. Invalid tokens are treated as anonymous.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid caller token")
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, PlatformAdmin: claims.PlatformAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth is middleware that requires authentication
// Returns 401 if the user is not authenticated
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, callerContextKey, id)
}

// GetIdentity returns the caller identity, or the zero value when anonymous.
func GetIdentity(ctx context.Context) Identity {
	id, _ := ctx.Value(callerContextKey).(Identity)
	return id
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	return GetIdentity(ctx).UserID
}
