package middleware

import (
	"net/http"
	"strings"

	"github.com/xraph/bastion"
)

// AccessVerifier verifies access tokens. *token.Service implements it.
type AccessVerifier interface {
	VerifyAccessToken(raw string) (bastion.Principal, error)
}

// Authenticate attaches the principal of a valid "Authorization: Bearer"
// access token to the request context. Requests without the header pass
// through anonymously and are rejected later by handlers that need a
// caller; a present but invalid token is rejected here with 401.
func Authenticate(v AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			p, err := v.VerifyAccessToken(strings.TrimSpace(raw))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(bastion.WithPrincipal(r.Context(), p)))
		})
	}
}
