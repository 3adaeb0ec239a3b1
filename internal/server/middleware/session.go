package middleware

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/dmitrijs2005/fitcoach/internal/server/auth"
)

// TokenVerifier validates session tokens. *auth.Issuer implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authenticate requires a valid session token, taken from the bearer
// header or the session cookie, and stores its claims in the context.
func Authenticate(verifier TokenVerifier, cookies auth.CookieSettings, log logging.Logger) func(http.Handler) http.Handler {
	log = log.With("module", "session")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				log.Debug(r.Context(), "session token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole lets the request through only when the session role equals
// role. It must run after Authenticate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			if claims.Role != role {
				writeError(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok && c != nil
}
