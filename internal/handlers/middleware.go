package handlers

import (
	"net/http"

	"github.com/mategroup/sso/internal/auth"
	"github.com/mategroup/sso/internal/services"
	"github.com/mategroup/sso/internal/session"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid token and attaches the claims
// to the request context otherwise.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := session.ExtractToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, services.KindAuth, "Unauthorized - No token provided")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.KindAuth, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
