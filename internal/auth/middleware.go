package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/moviecatalog/internal/apperror"
)

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const userIDKey contextKey = "userID"

// CookieName is the cookie POST /api/users sets alongside the JSON token.
const CookieName = "token"

// OptionalAuth stores the token's user id in the request context when a
// valid token is present. Requests without a token pass through anonymously:
// every catalog route also accepts an explicit userId.
//
// A bearer header that fails validation is handed to reject as an
// unauthorized error. A bad cookie is ignored, so a browser holding a stale
// cookie can still log in again.
func OptionalAuth(tokens *TokenService, reject func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, fromHeader := tokenFromRequest(r)
			if raw != "" {
				userID, err := tokens.Validate(raw)
				switch {
				case err == nil:
					r = r.WithContext(WithUserID(r.Context(), userID))
				case fromHeader:
					reject(w, r, apperror.Unauthorized("invalid or expired session token"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// tokenFromRequest prefers "Authorization: Bearer <jwt>" and falls back to
// the token cookie. fromHeader reports which one was used.
func tokenFromRequest(r *http.Request) (token string, fromHeader bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest, true
			}
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value, false
	}
	return "", false
}
